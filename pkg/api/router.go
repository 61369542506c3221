// Package api provides the HTTP control surface of the intersection.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goclaw/intersection/config"
	_ "github.com/goclaw/intersection/docs/swagger" // registers the API docs
	"github.com/goclaw/intersection/pkg/api/handlers"
	"github.com/goclaw/intersection/pkg/api/middleware"
	"github.com/goclaw/intersection/pkg/api/response"
	"github.com/goclaw/intersection/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	Intersection *handlers.IntersectionHandler
	Health       *handlers.HealthHandler

	// WebSocket serves /ws/frames; nil disables the stream.
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional HTTP metrics recorder.
	Metrics middleware.MetricsRecorder
}

// NewRouter creates the chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.CORS(cfg.Server.CORS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "route not found", middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "method not allowed", middleware.GetRequestID(r.Context()))
	})

	RegisterRoutes(r, cfg, h)
	return r
}

// RegisterRoutes registers all API routes. Only the versioned API is bound
// by the request timeout; the frame stream is long-lived.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	if h.Intersection != nil {
		r.Route("/api/v1/intersection", func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

			r.Get("/", h.Intersection.GetStatus)
			r.Get("/frame", h.Intersection.GetFrame)
			r.Post("/start", h.Intersection.Start)
			r.Post("/stop", h.Intersection.Stop)
			r.Post("/reset", h.Intersection.Reset)
			r.Get("/config", h.Intersection.GetConfig)
			r.Put("/config", h.Intersection.UpdateConfig)

			r.Get("/roads/images", h.Intersection.ListImages)
			r.Put("/roads/{road}/image", h.Intersection.UploadImage)
			r.Delete("/roads/{road}/image", h.Intersection.DeleteImage)
		})
	}

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	if h.WebSocket != nil {
		r.Get("/ws/frames", h.WebSocket.ServeHTTP)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
