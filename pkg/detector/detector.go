// Package detector finds emergency vehicles in road images and turns the
// results into the presence set a scheduling session starts from.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/goclaw/intersection/pkg/intersection"
)

// ErrDetectorUnavailable is reported when a detection could not be made.
// Callers treat the road as not flagged.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// DefaultTargetClass is the object class that flags a road.
const DefaultTargetClass = "ambulance"

// Detector reports whether an emergency vehicle is visible in image.
type Detector interface {
	Detect(ctx context.Context, road intersection.Road, image []byte) (bool, error)
}

// RequestError describes a failed call to a detection service.
type RequestError struct {
	Road       intersection.Road
	StatusCode int
	Cause      error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("detect %q: service returned status %d: %v", e.Road, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("detect %q: %v", e.Road, e.Cause)
}

// Unwrap exposes both the cause and ErrDetectorUnavailable.
func (e *RequestError) Unwrap() []error {
	return []error{ErrDetectorUnavailable, e.Cause}
}

// StaticDetector flags a fixed set of roads regardless of the image.
type StaticDetector struct {
	flagged intersection.PresenceSet
}

// NewStaticDetector creates a detector that flags roads.
func NewStaticDetector(roads ...intersection.Road) *StaticDetector {
	return &StaticDetector{flagged: intersection.NewPresenceSet(roads...)}
}

// Detect implements Detector.
func (d *StaticDetector) Detect(ctx context.Context, road intersection.Road, _ []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &RequestError{Road: road, Cause: err}
	}
	return d.flagged.Has(road), nil
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, road intersection.Road, image []byte) (bool, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, road intersection.Road, image []byte) (bool, error) {
	return f(ctx, road, image)
}
