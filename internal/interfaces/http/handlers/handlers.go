package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sawpanic/folio/internal/infrastructure/db"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

// Optimizer is the subset of service.Service the API serves.
type Optimizer interface {
	Summaries(ctx context.Context, strategy *optimize.Strategy, p service.Portfolio, opts service.Options) (*service.Response, error)
	Frontier(ctx context.Context, p service.Portfolio, points int, opts service.Options) (*service.FrontierResponse, error)
	Analytics(ctx context.Context, symbol, benchmark string, r marketdata.Range) (*service.AssetAnalytics, error)
}

// HealthChecker reports database health; db.Manager implements it.
type HealthChecker interface {
	Health(ctx context.Context) db.HealthCheck
}

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	optimizer Optimizer
	history   marketdata.HistorySource
	database  HealthChecker
	portfolio service.Portfolio
	version   string
	logger    zerolog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithHistory enables GET /market/{symbol} over a live price source.
func WithHistory(src marketdata.HistorySource) Option {
	return func(h *Handlers) { h.history = src }
}

// WithDatabase adds the database to /health.
func WithDatabase(hc HealthChecker) Option {
	return func(h *Handlers) { h.database = hc }
}

// WithDefaultPortfolio replaces the demo portfolio served when a request has none.
func WithDefaultPortfolio(p service.Portfolio) Option {
	return func(h *Handlers) { h.portfolio = p }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(h *Handlers) { h.version = v }
}

// WithLogger sets the handler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handlers) { h.logger = l }
}

// New creates the handler set.
func New(optimizer Optimizer, opts ...Option) *Handlers {
	h := &Handlers{
		optimizer: optimizer,
		portfolio: service.DemoPortfolio(),
		version:   "dev",
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "http").Logger()
	return h
}

// HasHistory reports whether the market history route should be mounted.
func (h *Handlers) HasHistory() bool {
	return h.history != nil
}

type requestIDKey struct{}

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID, or "unknown".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// writeJSON writes a JSON response with status.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes the standard error body.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorBody{
			Code:      code,
			Message:   message,
			RequestID: RequestID(r.Context()),
		},
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrStrategyNotFound), errors.Is(err, optimize.ErrUnknownStrategy):
		h.writeError(w, r, http.StatusNotFound, "strategy_not_found", "Strategy not found")
	case errors.Is(err, marketdata.ErrUnknownRange):
		h.writeError(w, r, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, service.ErrEmptySymbol):
		h.writeError(w, r, http.StatusBadRequest, "invalid_symbol", err.Error())
	case errors.Is(err, marketdata.ErrNoData):
		h.writeError(w, r, http.StatusNotFound, "no_data", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Str("path", r.URL.Path).Msg("Request failed")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

// MethodNotAllowed handles 405 responses.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
