// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/storage"
)

// MemoryStorage implements the Storage interface using an in-memory map.
type MemoryStorage struct {
	mu     sync.RWMutex
	images map[intersection.Road]*storage.RoadImage
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		images: make(map[intersection.Road]*storage.RoadImage),
	}
}

// SaveImage stores a copy of img.
func (m *MemoryStorage) SaveImage(ctx context.Context, img *storage.RoadImage) error {
	if err := storage.ValidateImage(img); err != nil {
		return err
	}

	copied := img.Clone()
	if copied.UploadedAt.IsZero() {
		copied.UploadedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.Road] = copied
	return nil
}

// GetImage retrieves the image for road.
func (m *MemoryStorage) GetImage(ctx context.Context, road intersection.Road) (*storage.RoadImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[road]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "image", ID: string(road)}
	}
	return img.Clone(), nil
}

// ListImages returns copies of all images ordered by road.
func (m *MemoryStorage) ListImages(ctx context.Context) ([]*storage.RoadImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*storage.RoadImage, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Road < out[j].Road })
	return out, nil
}

// DeleteImage removes the image for road.
func (m *MemoryStorage) DeleteImage(ctx context.Context, road intersection.Road) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.images[road]; !ok {
		return &storage.NotFoundError{EntityType: "image", ID: string(road)}
	}
	delete(m.images, road)
	return nil
}

// Clear removes every image.
func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = make(map[intersection.Road]*storage.RoadImage)
	return nil
}

// Close is a no-op for in-memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}
