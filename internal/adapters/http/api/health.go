package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/pss/pkg/metrics"
)

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	registry RegistryControl
	stats    StatsProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reg RegistryControl, stats StatsProvider) *HealthHandler {
	return &HealthHandler{registry: reg, stats: stats}
}

type healthResponse struct {
	Status             string `json:"status"`
	RegistryGeneration uint64 `json:"registry_generation"`
	Definitions        int    `json:"definitions"`
	SessionID          string `json:"session_id,omitempty"`
}

// HandleHealth handles GET /healthz. The engine is healthy once a registry
// snapshot with at least one definition is active.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.registry != nil {
		snap := h.registry.Snapshot()
		resp.RegistryGeneration = snap.Generation
		resp.Definitions = snap.Len()
		if snap.Len() == 0 {
			resp.Status = "starting"
		}
	}
	if h.stats != nil {
		resp.SessionID = h.stats.SessionID()
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleMetrics serves the custom Prometheus registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
