package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/folio/internal/interfaces/http/handlers"
	"github.com/sawpanic/folio/internal/metrics"
	"github.com/sawpanic/folio/internal/service"
)

func newTestServer(cfg ServerConfig, opts ...Option) *Server {
	return NewServer(cfg, handlers.New(service.New(nil)), opts...)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_RequestID(t *testing.T) {
	s := newTestServer(DefaultServerConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-1")
	rec = serve(s, req)
	assert.Equal(t, "caller-1", rec.Header().Get("X-Request-ID"))
}

func TestServer_NotFoundAndMethod(t *testing.T) {
	s := newTestServer(DefaultServerConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "endpoint_not_found", body.Error.Code)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/optimization", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/market/VOO", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "market route is only mounted with a history source")
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(DefaultServerConfig())

	req := httptest.NewRequest(http.MethodOptions, "/optimization", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(s, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	s := newTestServer(cfg)

	first := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)

	other := httptest.NewRequest(http.MethodGet, "/health", nil)
	other.RemoteAddr = "10.0.0.9:4000"
	assert.Equal(t, http.StatusOK, serve(s, other).Code, "limits are per client")
}

func TestServer_Metrics(t *testing.T) {
	reg := metrics.New()
	s := newTestServer(DefaultServerConfig(), WithMetrics(reg, reg.Handler()))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/analytics/VOO", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `folio_http_requests_total{code="2xx",method="GET",route="/analytics/{symbol}"} 1`)
}

func TestServer_Address(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Port = 9191
	assert.Equal(t, "127.0.0.1:9191", newTestServer(cfg).Address())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.RemoteAddr = "garbage"
	assert.Equal(t, "garbage", clientIP(req))
}
