// Package models defines API request/response data structures.
package models

import (
	"time"

	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/intersection"
)

// ConfigRequest replaces the intersection configuration. The bounds are
// the ones operators may choose from.
type ConfigRequest struct {
	// Roads lists the approaches in service order.
	Roads []string `json:"roads" validate:"min=2,max=4,unique,dive,required"`

	// GreenSeconds is the green phase length.
	GreenSeconds int `json:"green_seconds" validate:"min=5,max=60"`

	// YellowSeconds is the yellow phase length.
	YellowSeconds int `json:"yellow_seconds" validate:"min=1,max=10"`
}

// Build converts the request into a scheduler configuration.
func (r ConfigRequest) Build() (intersection.Config, error) {
	roads := make([]intersection.Road, len(r.Roads))
	for i, name := range r.Roads {
		roads[i] = intersection.Road(name)
	}
	return intersection.NewConfig(roads, r.GreenSeconds, r.YellowSeconds)
}

// CommandResponse answers start, stop and reset.
type CommandResponse struct {
	// Changed is false when the command had no effect in the current state.
	Changed bool              `json:"changed"`
	Status  controller.Status `json:"status"`
}

// FrameResponse is the last emitted frame of the intersection.
type FrameResponse struct {
	Intersection string                 `json:"intersection"`
	Lifecycle    intersection.Lifecycle `json:"lifecycle"`
	Tick         uint64                 `json:"tick"`
	Frame        intersection.Frame     `json:"frame"`
}

// ImageListResponse lists stored road images.
type ImageListResponse struct {
	Images []controller.ImageInfo `json:"images"`
	Total  int                    `json:"total"`
}

// HealthStatusResponse is the detailed /status body.
type HealthStatusResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	GitCommit     string                 `json:"git_commit"`
	Uptime        string                 `json:"uptime"`
	StartedAt     time.Time              `json:"started_at"`
	Intersection  string                 `json:"intersection"`
	Lifecycle     intersection.Lifecycle `json:"lifecycle"`
	Round         intersection.Round     `json:"round"`
	Tick          uint64                 `json:"tick"`
	FrameBus      string                 `json:"frame_bus"`
	StreamClients int                    `json:"stream_clients"`
}
