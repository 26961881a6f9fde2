package handlers

import (
	"time"

	"github.com/sawpanic/folio/internal/analytics"
	"github.com/sawpanic/folio/internal/infrastructure/db"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// PortfolioRequest is the POST body of /optimization and /frontier. An absent portfolio
// means the default one.
type PortfolioRequest struct {
	Portfolio   *service.Portfolio    `json:"portfolio,omitempty"`
	Range       marketdata.Range      `json:"range,omitempty"`
	Constraints *optimize.Constraints `json:"constraints,omitempty"`
}

// HealthResponse is served by /health.
type HealthResponse struct {
	Status    string          `json:"status"` // "healthy" or "degraded"
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Uptime    string          `json:"uptime"`
	Database  *db.HealthCheck `json:"database,omitempty"`
}

// MarketResponse is served by /market/{symbol}.
type MarketResponse struct {
	Symbol   string                 `json:"symbol"`
	Range    marketdata.Range       `json:"range"`
	Interval string                 `json:"interval"`
	Count    int                    `json:"count"`
	Data     []analytics.PricePoint `json:"data"`
}
