package client

import (
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/folio/internal/net/budget"
	"github.com/sawpanic/folio/internal/net/circuit"
	"github.com/sawpanic/folio/internal/net/ratelimit"
)

const userAgent = "folio/1.0 (+portfolio optimizer)"

// WrapperConfig configures the outbound transport of one provider.
type WrapperConfig struct {
	Provider       string
	RateLimiter    *ratelimit.Limiter
	CircuitBreaker *gobreaker.CircuitBreaker
	// Budget caps requests per day; nil is unlimited.
	Budget *budget.Tracker
}

// Wrapper is an http.RoundTripper adding a user agent, a daily request budget, per-host
// rate limiting and a circuit breaker. 5xx and 429 responses count as breaker failures.
type Wrapper struct {
	config    WrapperConfig
	transport http.RoundTripper
}

// NewWrapper wraps transport (http.DefaultTransport when nil).
func NewWrapper(config WrapperConfig, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Wrapper{config: config, transport: transport}
}

// Client returns an http.Client using the wrapper.
func (w *Wrapper) Client() *http.Client {
	return &http.Client{Transport: w}
}

// RoundTrip implements http.RoundTripper.
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	if err := w.config.Budget.Consume(); err != nil {
		return nil, &ProviderError{Provider: w.config.Provider, Type: "budget", Err: err}
	}

	if w.config.RateLimiter != nil {
		if err := w.config.RateLimiter.Wait(req.Context(), req.URL.Host); err != nil {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "rate_limit", Err: err}
		}
	}

	if w.config.CircuitBreaker == nil {
		return w.transport.RoundTrip(req)
	}

	out, err := w.config.CircuitBreaker.Execute(func() (interface{}, error) {
		resp, err := w.transport.RoundTrip(req)
		if err != nil {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "transport", Err: err}
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, &ProviderError{
				Provider:   w.config.Provider,
				Type:       "http_error",
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			}
		}
		return resp, nil
	})
	if err != nil {
		if circuit.IsOpen(err) {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "circuit", Err: err}
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// ProviderError describes why an outbound call failed.
type ProviderError struct {
	Provider   string `json:"provider"`
	Type       string `json:"type"` // budget, rate_limit, circuit, transport, http_error
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s error (HTTP %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s error: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports a rate limiter refusal.
func (e *ProviderError) IsRateLimited() bool {
	return e.Type == "rate_limit"
}

// IsBudgetExhausted reports a daily budget refusal.
func (e *ProviderError) IsBudgetExhausted() bool {
	return e.Type == "budget"
}

// IsCircuitOpen reports a breaker refusal.
func (e *ProviderError) IsCircuitOpen() bool {
	return e.Type == "circuit"
}
