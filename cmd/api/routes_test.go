package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"audit-portal/internal/auth"
	"audit-portal/internal/config"
	"audit-portal/internal/consultation"
	"audit-portal/internal/httpapi"
	"audit-portal/internal/ledger"
	"audit-portal/internal/reporting"
	"audit-portal/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, opts routeOptions) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "test", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	mem := store.NewMemory()
	ledgerSvc := ledger.NewService(mem.Ledger(), nil)
	payments, err := newPayments(config.Config{Payments: config.PaymentsConfig{Mock: true, HourPrice: 10}}, ledgerSvc, nil)
	require.NoError(t, err)

	h := httpapi.Handlers{
		Auth:          m,
		Consultations: consultation.NewService(mem, consultation.Options{}),
		Ledger:        ledgerSvc,
		Categories:    mem,
		Payments:      payments,
		Reports:       reporting.NewService(mem),
	}
	r := gin.New()
	registerRoutes(r, h, auth.RequireAccessToken(m), opts)
	return r, m
}

func call(t *testing.T, r *gin.Engine, m *auth.Manager, method, path, role string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		pair, err := m.IssuePair(time.Now(), role+"-1", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutes_RoleGates(t *testing.T) {
	r, m := testRouter(t, routeOptions{})

	cases := []struct {
		method, path, role string
		code               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/me", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/auth/login", "", http.StatusNotFound},

		{http.MethodPost, "/v1/consultations", "auditor", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/accept", "auditor", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/reject", "auditor", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/cancel", "auditor", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/quote", "company", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/start", "partner", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/complete", "company", http.StatusForbidden},
		{http.MethodPost, "/v1/consultations/x/feedback", "company", http.StatusForbidden},

		// past the gate, the service reports the missing row
		{http.MethodPost, "/v1/consultations/x/accept", "company", http.StatusNotFound},
		{http.MethodPost, "/v1/consultations/x/start", "auditor", http.StatusNotFound},
		{http.MethodPost, "/v1/consultations/x/cancel", "admin", http.StatusNotFound},

		{http.MethodGet, "/v1/balance", "auditor", http.StatusForbidden},
		{http.MethodGet, "/v1/balance", "partner", http.StatusOK},
		{http.MethodGet, "/v1/admin/reports/hours", "auditor", http.StatusForbidden},
		{http.MethodGet, "/v1/admin/reports/hours", "admin", http.StatusOK},
		{http.MethodGet, "/v1/categories", "company", http.StatusOK},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, call(t, r, m, tc.method, tc.path, tc.role), "%s %s as %q", tc.method, tc.path, tc.role)
	}
}

func TestRoutes_LoginOnlyWhenEnabled(t *testing.T) {
	r, m := testRouter(t, routeOptions{EnableLogin: true})
	// empty body
	assert.Equal(t, http.StatusBadRequest, call(t, r, m, http.MethodPost, "/v1/auth/login", ""))
}

func TestRoutes_Readiness(t *testing.T) {
	r, m := testRouter(t, routeOptions{Ready: map[string]healthFunc{
		"database": func(context.Context) error { return nil },
	}})
	assert.Equal(t, http.StatusOK, call(t, r, m, http.MethodGet, "/readyz", ""))

	r, m = testRouter(t, routeOptions{Ready: map[string]healthFunc{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}})
	assert.Equal(t, http.StatusServiceUnavailable, call(t, r, m, http.MethodGet, "/readyz", ""))
}
