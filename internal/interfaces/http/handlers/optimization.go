package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

const maxBodyBytes = 1 << 20

// Optimization handles GET|POST /optimization?strategy=&range=. GET optimizes the default
// portfolio; POST takes a PortfolioRequest body.
func (h *Handlers) Optimization(w http.ResponseWriter, r *http.Request) {
	portfolio, opts, ok := h.portfolioRequest(w, r)
	if !ok {
		return
	}

	var strategy *optimize.Strategy
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		s, err := optimize.ParseStrategy(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		strategy = &s
	}

	resp, err := h.optimizer.Summaries(r.Context(), strategy, portfolio, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if strategy != nil {
		if _, err := resp.Selected(); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Frontier handles POST /frontier?points=&range=.
func (h *Handlers) Frontier(w http.ResponseWriter, r *http.Request) {
	portfolio, opts, ok := h.portfolioRequest(w, r)
	if !ok {
		return
	}

	points := 0
	if raw := r.URL.Query().Get("points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 || n > 500 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_points", "points must be an integer between 2 and 500")
			return
		}
		points = n
	}

	resp, err := h.optimizer.Frontier(r.Context(), portfolio, points, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Analytics handles GET /analytics/{symbol}?benchmark=&range=.
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	rng, err := marketdata.ParseRange(q.Get("range"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp, err := h.optimizer.Analytics(r.Context(), symbol, q.Get("benchmark"), rng)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Market handles GET /market/{symbol}?range= with the raw monthly closes of a live source.
func (h *Handlers) Market(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(mux.Vars(r)["symbol"])
	if symbol == "" {
		h.writeServiceError(w, r, service.ErrEmptySymbol)
		return
	}
	if h.history == nil {
		h.writeError(w, r, http.StatusNotImplemented, "no_history_source", "no live price source configured")
		return
	}

	rng, err := marketdata.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	points, err := h.history.History(r.Context(), symbol, rng)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	points = marketdata.MonthlyCloses(points)

	h.writeJSON(w, http.StatusOK, MarketResponse{
		Symbol:   symbol,
		Range:    rng,
		Interval: "1mo",
		Count:    len(points),
		Data:     points,
	})
}

// portfolioRequest resolves the portfolio and options of a request, writing a 400 on
// malformed input.
func (h *Handlers) portfolioRequest(w http.ResponseWriter, r *http.Request) (service.Portfolio, service.Options, bool) {
	portfolio := h.portfolio
	var opts service.Options

	if r.Method == http.MethodPost && r.Body != nil {
		var body PortfolioRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
			return portfolio, opts, false
		}
		if body.Portfolio != nil {
			portfolio = *body.Portfolio
		}
		opts.Constraints = body.Constraints
		opts.Range = body.Range
	}

	if c := opts.Constraints; c != nil {
		if c.MinWeight < 0 || c.MaxWeight > 1 || c.MinWeight > c.MaxWeight {
			h.writeError(w, r, http.StatusBadRequest, "invalid_constraints", "constraints must satisfy 0 <= minWeight <= maxWeight <= 1")
			return portfolio, opts, false
		}
	}

	if raw := r.URL.Query().Get("range"); raw != "" {
		rng, err := marketdata.ParseRange(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return portfolio, opts, false
		}
		opts.Range = rng
	} else if opts.Range != "" {
		rng, err := marketdata.ParseRange(string(opts.Range))
		if err != nil {
			h.writeServiceError(w, r, err)
			return portfolio, opts, false
		}
		opts.Range = rng
	}

	return portfolio, opts, true
}
