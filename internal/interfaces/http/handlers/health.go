package handlers

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// Health handles GET /health. A failing database degrades the status but still answers 200
// so the engine remains usable on synthetic data.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	if h.database != nil {
		check := h.database.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
