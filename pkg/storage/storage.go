// Package storage provides the store for road images uploaded for emergency
// vehicle detection.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
)

// Storage defines the interface for road image persistence.
type Storage interface {
	// SaveImage stores img, replacing any earlier image for the same road.
	SaveImage(ctx context.Context, img *RoadImage) error
	GetImage(ctx context.Context, road intersection.Road) (*RoadImage, error)
	// ListImages returns every stored image ordered by road name.
	ListImages(ctx context.Context) ([]*RoadImage, error)
	DeleteImage(ctx context.Context, road intersection.Road) error
	// Clear removes every stored image.
	Clear(ctx context.Context) error

	Close() error
}

// RoadImage is one uploaded camera image for a road.
type RoadImage struct {
	Road        intersection.Road `json:"road"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"content_type"`
	Data        []byte            `json:"data"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}

// Size returns the image size in bytes.
func (i *RoadImage) Size() int { return len(i.Data) }

// Clone returns a deep copy of the image.
func (i *RoadImage) Clone() *RoadImage {
	c := *i
	c.Data = append([]byte(nil), i.Data...)
	return &c
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// InvalidImageError is returned when an image cannot be stored.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image: %s", e.Reason)
}

// ValidateImage checks the fields every backend requires.
func ValidateImage(img *RoadImage) error {
	if img == nil {
		return &InvalidImageError{Reason: "image is nil"}
	}
	if img.Road == "" {
		return &InvalidImageError{Reason: "road is required"}
	}
	if len(img.Data) == 0 {
		return &InvalidImageError{Reason: "image data is empty"}
	}
	return nil
}
