package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/handler"
	"github.com/SandersonMaxwell/spin-cashback/pkg/config"
	"github.com/SandersonMaxwell/spin-cashback/pkg/rpccodec"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("CASHBACK_POLICY_FILE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "*")

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := InitDependencies(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(deps.Cleanup)

	return SetupRouter(deps)
}

func TestRouter_UtilityRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/health", http.StatusOK, "ok"},
		{"/ready", http.StatusOK, "ready"},
		{"/health/details", http.StatusOK, `"db":{"status":"skipped"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/api/v1/policy", http.StatusOK, `"min_rounds":25`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
		})
	}
}

func TestRouter_UploadRoutesAreNotCached(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/layouts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRouter_ConnectService(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	t.Cleanup(srv.Close)

	client := connect.NewClient[handler.GetPolicyRequest, handler.GetPolicyResponse](
		srv.Client(), srv.URL+handler.GetPolicyProcedure, rpccodec.WithJSON(),
	)
	req := connect.NewRequest(&handler.GetPolicyRequest{})
	req.Header().Set(requestIDHeader, "router-test")

	resp, err := client.CallUnary(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 25, resp.Msg.MinRounds)
	assert.Equal(t, "router-test", resp.Header().Get(requestIDHeader))
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, handler.BuildReportProcedure, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Contains(t, []int{http.StatusNoContent, http.StatusOK}, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
