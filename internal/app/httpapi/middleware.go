package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// authenticator issues and verifies the operator JWT used by /system routes.
type authenticator struct {
	secret   []byte
	user     string
	password string
	log      *logger.Logger
}

func newAuthenticator(cfg *config.Config, log *logger.Logger) *authenticator {
	a := &authenticator{log: log}
	if cfg != nil {
		a.secret = []byte(cfg.AdminJWTSecret)
		a.user = cfg.AdminUser
		a.password = cfg.AdminPassword
	}
	return a
}

func (a *authenticator) enabled() bool {
	return len(a.secret) > 0 && a.user != ""
}

func (a *authenticator) login(w http.ResponseWriter, r *http.Request) {
	if !a.enabled() {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("operator authentication not configured"))
		return
	}

	var payload struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.User != a.user || payload.Password != a.password {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   a.user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			writeError(w, http.StatusNotImplemented, fmt.Errorf("operator authentication not configured"))
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid || claims.Subject != a.user {
			a.log.WithError(err).Warn("rejected operator token")
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// readLimiter throttles paid price reads so a hot feed cannot be drained by
// a single client loop.
func (h *handler) readLimiter(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(20), 40)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("read rate exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
