package queue

import (
	"encoding/json"

	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

// Request kinds.
const (
	KindOptimization = "optimization"
	KindFrontier     = "frontier"
	KindAnalytics    = "analytics"
)

// Request is the JSON body of a queued job.
type Request struct {
	Kind        string                `json:"kind"`
	Strategy    string                `json:"strategy,omitempty"`
	Portfolio   *service.Portfolio    `json:"portfolio,omitempty"`
	Range       marketdata.Range      `json:"range,omitempty"`
	Constraints *optimize.Constraints `json:"constraints,omitempty"`
	Points      int                   `json:"points,omitempty"`
	Symbol      string                `json:"symbol,omitempty"`
	Benchmark   string                `json:"benchmark,omitempty"`
}

// Reply is published to the request's ReplyTo queue with the same correlation ID.
type Reply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReplyError     `json:"error,omitempty"`
}

// ReplyError mirrors the HTTP error body.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return e.Code + ": " + e.Message
}
