package handlers

import (
	"net/http"
	"time"

	"github.com/goclaw/intersection/pkg/api/models"
	"github.com/goclaw/intersection/pkg/api/response"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/version"
)

// HealthHandler serves the probe and status endpoints.
type HealthHandler struct {
	ctrl      *controller.Controller
	stream    *WebSocketHandler
	startedAt time.Time
}

// NewHealthHandler creates a health handler. stream may be nil when the
// frame stream is disabled.
func NewHealthHandler(ctrl *controller.Controller, stream *WebSocketHandler) *HealthHandler {
	return &HealthHandler{
		ctrl:      ctrl,
		stream:    stream,
		startedAt: time.Now(),
	}
}

// Health handles GET /health (liveness probe).
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready. The controller is ready while its frame bus
// accepts events.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 503 {object} map[string]bool
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Bus().Healthy() {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// Status handles GET /status.
// @Summary Service status
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthStatusResponse
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status(r.Context())
	info := version.Get()

	resp := models.HealthStatusResponse{
		Status:       "ok",
		Version:      info.Version,
		GitCommit:    info.GitCommit,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt:    h.startedAt.UTC(),
		Intersection: st.Intersection,
		Lifecycle:    st.Lifecycle,
		Round:        st.Round,
		Tick:         st.Tick,
		FrameBus:     "ok",
	}
	if !h.ctrl.Bus().Healthy() {
		resp.Status = "degraded"
		resp.FrameBus = "unavailable"
	}
	if h.stream != nil {
		resp.StreamClients = h.stream.Clients()
	}
	response.JSON(w, http.StatusOK, resp)
}
