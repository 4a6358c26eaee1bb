package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/auth"
	"github.com/odyssey-erp/odyssey-authz/internal/gate"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

func newTestRouter(limit int) (http.Handler, *auth.Tokens) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("router-test-secret", time.Hour)
	matrix := rbac.NewMatrix(roles.Default(), rbac.DefaultModules())
	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: limit, AppRequestTimeout: 5 * time.Second},
		Tokens:         tokens,
		RecordsHandler: gate.NewHandler(gate.New(matrix, logger, gate.Options{})),
		Metrics:        observability.NewMetrics(),
	})
	return router, tokens
}

func TestHealthzCarriesSecureHeaders(t *testing.T) {
	router, _ := newTestRouter(100)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRateLimitAnswersProblem(t *testing.T) {
	router, _ := newTestRouter(2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.Contains(t, last.Body.String(), "rate limit exceeded")
}

func TestBearerTokenResolvesIdentity(t *testing.T) {
	router, tokens := newTestRouter(100)
	token, _, err := tokens.Issue(shared.Identity{UserID: "u7", Role: "hr", Department: "hr"})
	require.NoError(t, err)

	body := `{"records":[{"id":"a","createdBy":"u9","createdByDept":"hr"},{"id":"b","createdBy":"u7"},{"id":"c"}]}`
	post := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/records/filter", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := post("Bearer " + token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"visible":2`)

	require.Equal(t, http.StatusUnauthorized, post("").Code)
	require.Equal(t, http.StatusUnauthorized, post("Bearer garbage").Code)
}

func TestMetricsEndpointMounted(t *testing.T) {
	router, _ := newTestRouter(100)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
