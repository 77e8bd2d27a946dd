package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/handler"
	"github.com/creatorhub/backend/internal/repository/memory"
	"github.com/creatorhub/backend/internal/scheduler"
	"github.com/creatorhub/backend/internal/service"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/creatorhub/backend/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const cronSecret = "cron-secret"

type testServer struct {
	t       *testing.T
	handler http.Handler
	auth    *service.AuthService
}

func newTestServer(t *testing.T, sweeps handler.SweepRunner) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memory.New()

	billing := service.NewBillingService(store, payment.NewMockGateway(), service.BillingConfig{
		MaxTopUp: money.MustParse("500.00"),
	}, log)
	if sweeps == nil {
		sweeps = scheduler.NewRunner(billing, scheduler.NewLocalLocker(), 0, time.Minute, log)
	}

	auth := service.NewAuthService("jwt-secret")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := New(ctx, Deps{
		Log:         log,
		Auth:        auth,
		Tiers:       service.NewTierService(store, log),
		Billing:     billing,
		Users:       service.NewUserService(store, log),
		Sweeps:      sweeps,
		Health:      map[string]handler.Pinger{"store": store},
		CronSecret:  cronSecret,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	return &testServer{t: t, handler: h, auth: auth}
}

func (s *testServer) token(userID, role string) string {
	tok, err := s.auth.IssueToken(userID, role, time.Hour)
	require.NoError(s.t, err)
	return "Bearer " + tok
}

func (s *testServer) do(method, path, authz, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// createUser seeds a user through the admin endpoint and returns its id.
func (s *testServer) createUser(name, balance string) string {
	admin := s.token("root", domain.RoleAdmin)
	w := s.do(http.MethodPost, "/api/users", admin,
		`{"username":"`+name+`","displayName":"`+name+`","initialBalance":`+balance+`}`)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(s.t, w)["id"].(string)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["store"])

	w = s.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/api/me", "/api/wallet", "/api/subscriptions"} {
		w := s.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := s.do(http.MethodGet, "/api/me", "Bearer nope", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/users", s.token("u1", domain.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_SubscribeFlow(t *testing.T) {
	s := newTestServer(t, nil)
	creatorID := s.createUser("creator", "0")
	fanID := s.createUser("fan", "20")
	creator := s.token(creatorID, domain.RoleUser)
	fan := s.token(fanID, domain.RoleUser)

	w := s.do(http.MethodPut, "/api/me/profile", creator,
		`{"displayName":"Creator","bio":"hi","subscriptionTiers":[{"name":"Gold","price":15,"color":"gold"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/creators/"+creatorID+"/tiers", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tiers []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tiers))
	require.Len(t, tiers, 1)
	tierID := tiers[0]["id"].(string)
	assert.Equal(t, 15.0, tiers[0]["price"])
	assert.Equal(t, 1.0, tiers[0]["durationInMonths"])

	w = s.do(http.MethodPost, "/api/tiers/"+tierID+"/subscribe", fan, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 5.0, body["newBalance"])
	assert.NotEmpty(t, body["subscriptionId"])

	w = s.do(http.MethodPost, "/api/tiers/"+tierID+"/subscribe", fan, "")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient balance", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/tiers/"+tierID+"/subscribe", creator, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/tiers/missing/subscribe", fan, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/wallet", creator, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15.0, decode(t, w)["balance"])

	w = s.do(http.MethodGet, "/api/subscriptions", fan, "")
	require.Equal(t, http.StatusOK, w.Code)
	var subs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &subs))
	require.Len(t, subs, 1)
	subID := subs[0]["id"].(string)

	w = s.do(http.MethodPatch, "/api/subscriptions/"+subID, fan, `{"autoRenew":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["autoRenew"])

	w = s.do(http.MethodDelete, "/api/tiers/"+tierID, creator, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/me/profile", creator, `{"displayName":"Creator","subscriptionTiers":[]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/wallet/entries?limit=1", fan, "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.EntrySubscriptionCharge), entries[0]["kind"])

	w = s.do(http.MethodGet, "/api/wallet/entries?limit=zero", fan, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/admin/stats", s.token("root", domain.RoleAdmin), "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, 2.0, stats["users"])
	assert.Equal(t, 1.0, stats["activeSubscriptions"])
	assert.Equal(t, 20.0, stats["totalBalance"])
}

func TestRouter_ProfileValidation(t *testing.T) {
	s := newTestServer(t, nil)
	creator := s.token(s.createUser("creator", "0"), domain.RoleUser)

	w := s.do(http.MethodPut, "/api/me/profile", creator, `{"displayName":"c","subscriptionTiers":[{"name":"x","price":0}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPut, "/api/me/profile", creator, `{"displayName":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/me/profile", creator, `{"displayName":"c","subscriptionTiers":[{"name":"x","price":1.001}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPut, "/api/me/profile", creator, `{"displayName":"c","subscriptionTiers":[{"name":"x","price":"ten"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, "/api/me", creator, "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "creator", me["displayName"])
	assert.Empty(t, me["tiers"])
}

func TestRouter_AddBalance(t *testing.T) {
	s := newTestServer(t, nil)
	fan := s.token(s.createUser("fan", "0"), domain.RoleUser)

	w := s.do(http.MethodPost, "/api/balance/add", fan, `{"amount":"12.50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 12.5, decode(t, w)["balance"])

	for _, body := range []string{`{"amount":-1}`, `{"amount":"abc"}`, `{"amount":1.999}`, `{}`, `{"amount":10000}`} {
		w = s.do(http.MethodPost, "/api/balance/add", fan, body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
	}

	w = s.do(http.MethodPost, "/api/balance/add", fan, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CronSweep(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/cron/sweep", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/cron/sweep", "Bearer wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/cron/sweep", "Bearer "+cronSecret, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = s.do(http.MethodPost, "/api/cron/sweep", "Bearer "+cronSecret, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.Contains(t, report, "counts")
	assert.Contains(t, report, "results")
}

type busyRunner struct{}

func (busyRunner) RunOnce(context.Context) (*domain.SweepReport, error) {
	return nil, domain.Conflict(domain.ErrSweepInProgress, "a sweep is already running")
}

func TestRouter_CronSweepLocked(t *testing.T) {
	s := newTestServer(t, busyRunner{})

	w := s.do(http.MethodPost, "/api/cron/sweep", "Bearer "+cronSecret, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "already running"))
}
