// Package httpapi exposes the application services over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/FeederNet/oracle_layer/internal/app"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	"github.com/FeederNet/oracle_layer/internal/app/metrics"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app  *app.Application
	auth *authenticator
	log  *logger.Logger
}

// NewHandler returns the API router. Operator endpoints sit behind JWT
// authentication; everything else identifies callers by address in the
// request payload.
func NewHandler(application *app.Application, cfg *config.Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:  application,
		auth: newAuthenticator(cfg, log),
		log:  log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.auth.login).Methods(http.MethodPost)

	r.HandleFunc("/feeders", h.listFeeders).Methods(http.MethodGet)
	r.HandleFunc("/feeders/{address}", h.getFeeder).Methods(http.MethodGet)
	r.HandleFunc("/feeders/{address}/deposit", h.deposit).Methods(http.MethodPost)
	r.HandleFunc("/feeders/{address}/withdraw", h.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/feeders/{address}/ledger", h.ledger).Methods(http.MethodGet)

	r.HandleFunc("/oracles", h.listOracles).Methods(http.MethodGet)
	r.HandleFunc("/oracles", h.createOracle).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}", h.getOracle).Methods(http.MethodGet)
	r.HandleFunc("/oracles/{id}/open", h.openToPublic).Methods(http.MethodPost)
	r.Handle("/oracles/{id}/read", h.readLimiter(http.HandlerFunc(h.readPrice))).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/fillers", h.listFillers).Methods(http.MethodGet)
	r.HandleFunc("/oracles/{id}/admins", h.listAdmins).Methods(http.MethodGet)
	r.HandleFunc("/oracles/{id}/admins", h.addAdmin).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/admins/{address}", h.removeAdmin).Methods(http.MethodDelete)
	r.HandleFunc("/oracles/{id}/admissions", h.requestAdmission).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/admissions/{address}/complete", h.completeAdmission).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/inactivity", h.markInactive).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/rounds", h.propose).Methods(http.MethodPost)
	r.HandleFunc("/oracles/{id}/rounds", h.listRounds).Methods(http.MethodGet)
	r.HandleFunc("/oracles/{id}/rounds/open", h.openRound).Methods(http.MethodGet)

	r.HandleFunc("/rounds/{id}", h.getRound).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{id}/votes", h.vote).Methods(http.MethodPost)
	r.HandleFunc("/rounds/{id}/votes", h.listVotes).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{id}/disputes", h.ratOut).Methods(http.MethodPost)

	sys := r.PathPrefix("/system").Subrouter()
	sys.Use(h.auth.middleware)
	sys.HandleFunc("/pause", h.pause).Methods(http.MethodPost)
	sys.HandleFunc("/resume", h.resume).Methods(http.MethodPost)
	sys.HandleFunc("/claim", h.claim).Methods(http.MethodPost)
	sys.HandleFunc("/feeders/{address}/reset", h.resetCards).Methods(http.MethodPost)

	return metrics.InstrumentHandler(r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"paused": h.app.Breaker.Paused(),
	})
}

// --- feeders ----------------------------------------------------------------

func (h *handler) listFeeders(w http.ResponseWriter, r *http.Request) {
	feeders, err := h.app.Stake.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feeders)
}

func (h *handler) getFeeder(w http.ResponseWriter, r *http.Request) {
	f, err := h.app.Stake.Get(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := h.app.Stake.Deposit(r.Context(), mux.Vars(r)["address"], payload.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := h.app.Stake.Withdraw(r.Context(), mux.Vars(r)["address"], payload.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Stake.Ledger(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- oracles ----------------------------------------------------------------

func (h *handler) listOracles(w http.ResponseWriter, r *http.Request) {
	oracles, err := h.app.Oracles.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, oracles)
}

func (h *handler) createOracle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller       string   `json:"caller"`
		Symbol       string   `json:"symbol"`
		SeedFillers  []string `json:"seed_fillers"`
		PricePerRead int64    `json:"price_per_read"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o, err := h.app.Oracles.Create(r.Context(), payload.Caller, payload.Symbol, payload.SeedFillers, payload.PricePerRead)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handler) getOracle(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Oracles.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) openToPublic(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o, err := h.app.Oracles.OpenToPublic(r.Context(), mux.Vars(r)["id"], payload.Caller)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) readPrice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reader  string `json:"reader"`
		Payment int64  `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quote, err := h.app.Oracles.ReadPrice(r.Context(), mux.Vars(r)["id"], payload.Reader, payload.Payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *handler) listFillers(w http.ResponseWriter, r *http.Request) {
	fillers, err := h.app.Oracles.ListFillers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fillers)
}

func (h *handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.app.Oracles.ListAdmins(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

func (h *handler) addAdmin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller  string `json:"caller"`
		Address string `json:"address"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Oracles.AddAdmin(r.Context(), mux.Vars(r)["id"], payload.Caller, payload.Address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeAdmin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	caller := r.URL.Query().Get("caller")
	if err := h.app.Oracles.RemoveAdmin(r.Context(), vars["id"], caller, vars["address"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- membership -------------------------------------------------------------

func (h *handler) requestAdmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	adm, err := h.app.Registry.RequestAdmission(r.Context(), mux.Vars(r)["id"], payload.Address)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, adm)
}

func (h *handler) completeAdmission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := h.app.Registry.CompleteAdmission(r.Context(), vars["id"], vars["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) markInactive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reporter string `json:"reporter"`
		Target   string `json:"target"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Registry.MarkInactive(r.Context(), mux.Vars(r)["id"], payload.Reporter, payload.Target); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- rounds -----------------------------------------------------------------

func (h *handler) propose(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Proposer string `json:"proposer"`
		Price    int64  `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	round, err := h.app.Challenge.Propose(r.Context(), mux.Vars(r)["id"], payload.Proposer, payload.Price)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

func (h *handler) listRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.app.Challenge.ListRounds(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (h *handler) openRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.app.Challenge.OpenRound(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (h *handler) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.app.Challenge.GetRound(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (h *handler) vote(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Voter   string `json:"voter"`
		Approve bool   `json:"approve"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	round, err := h.app.Challenge.Vote(r.Context(), mux.Vars(r)["id"], payload.Voter, payload.Approve)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (h *handler) listVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := h.app.Challenge.ListVotes(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (h *handler) ratOut(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Accuser string `json:"accuser"`
		Accused string `json:"accused"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := h.app.Dispute.RatOut(r.Context(), mux.Vars(r)["id"], payload.Accuser, payload.Accused)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// --- system -----------------------------------------------------------------

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Oracles.Pause(r.Context(), payload.Caller); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Oracles.Unpause(r.Context(), payload.Caller); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		To     string `json:"to"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.app.Oracles.ClaimSlashedFunds(r.Context(), payload.Caller, payload.To)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

func (h *handler) resetCards(w http.ResponseWriter, r *http.Request) {
	f, err := h.app.Reputation.Reset(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// --- helpers ----------------------------------------------------------------

func statusFor(err error) int {
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, feed.ErrUnauthorized), errors.Is(err, feed.ErrExpelled):
		return http.StatusForbidden
	case errors.Is(err, feed.ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, feed.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, feed.ErrPaused), errors.Is(err, guard.ErrReentrancyDetected):
		return http.StatusServiceUnavailable
	case errors.Is(err, feed.ErrTransferFailure):
		return http.StatusBadGateway
	case errors.Is(err, feed.ErrInvalidState),
		errors.Is(err, feed.ErrDoubleVote),
		errors.Is(err, feed.ErrAlreadyDisputed),
		errors.Is(err, feed.ErrFalseAccusation),
		errors.Is(err, feed.ErrNoPendingRequest),
		errors.Is(err, feed.ErrTooSoon),
		errors.Is(err, feed.ErrLocked):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
