package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/FeederNet/oracle_layer/internal/app"
	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
)

func testConfig() *config.Config {
	return &config.Config{
		VaultAddress:    "oracle-vault",
		TreasuryAddress: "oracle-treasury",
		Operators:       "op",
		AdminJWTSecret:  "test-secret",
		AdminUser:       "admin",
		AdminPassword:   "hunter2",
	}
}

func newTestServer(t *testing.T) (http.Handler, *chain.MemoryBank) {
	t.Helper()
	cfg := testConfig()
	bank := chain.NewMemoryBank(cfg.VaultAddress)
	application, err := app.New(app.Stores{}, app.Deps{Config: cfg, Token: bank}, nil)
	require.NoError(t, err)
	return NewHandler(application, cfg, nil), bank
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Health(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, false, payload["paused"])
}

func TestHandler_CreateAndReadOracle(t *testing.T) {
	h, bank := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/oracles", map[string]any{
		"caller":         "op",
		"symbol":         "BTC/USD",
		"seed_fillers":   []string{"a", "b", "c"},
		"price_per_read": 5,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var o feed.Oracle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.True(t, o.OnlySeeders)
	assert.Equal(t, 3, o.QuorumSize)

	rec = doJSON(t, h, http.MethodPost, "/oracles", map[string]any{
		"caller": "mallory", "symbol": "ETH/USD", "seed_fillers": []string{"a"},
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	bank.Mint("reader", 100)
	rec = doJSON(t, h, http.MethodPost, "/oracles/"+o.ID+"/read", map[string]any{
		"reader": "reader", "payment": int64(5),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/oracles/"+o.ID+"/read", map[string]any{
		"reader": "reader", "payment": int64(1),
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestHandler_ProposeAndVote(t *testing.T) {
	h, bank := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/oracles", map[string]any{
		"caller": "op", "symbol": "BTC/USD", "seed_fillers": []string{"a", "b", "c"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o feed.Oracle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))

	// Stake the seed fillers so they can participate.
	for _, addr := range []string{"a", "b", "c"} {
		bank.Mint(addr, 100*100_000_000)
		rec = doJSON(t, h, http.MethodPost, "/feeders/"+addr+"/deposit", map[string]any{
			"amount": int64(100 * 100_000_000),
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/oracles/"+o.ID+"/rounds", map[string]any{
		"proposer": "a", "price": int64(5000),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var round feed.Round
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &round))
	assert.Equal(t, 1, round.Approvals)

	rec = doJSON(t, h, http.MethodPost, "/rounds/"+round.ID+"/votes", map[string]any{
		"voter": "b", "approve": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &round))
	assert.Equal(t, feed.OutcomeApproved, round.Outcome)

	rec = doJSON(t, h, http.MethodPost, "/rounds/"+round.ID+"/votes", map[string]any{
		"voter": "a", "approve": true,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/oracles/"+o.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(5000), o.Price)
}

func TestHandler_OperatorAuth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/system/pause", map[string]any{"caller": "op"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", map[string]any{
		"user": "admin", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", map[string]any{
		"user": "admin", "password": "hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login["token"])
	bearer := map[string]string{"Authorization": fmt.Sprintf("Bearer %s", login["token"])}

	rec = doJSON(t, h, http.MethodPost, "/system/pause", map[string]any{"caller": "op"}, bearer)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/oracles", map[string]any{
		"caller": "op", "symbol": "BTC/USD", "seed_fillers": []string{"a"},
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/system/resume", map[string]any{"caller": "op"}, bearer)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestHandler_UnknownFieldsRejected(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/oracles", map[string]any{
		"caller": "op", "symbol": "BTC/USD", "seed_fillers": []string{"a"}, "bogus": true,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_NotFound(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/oracles/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/feeders/nobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
