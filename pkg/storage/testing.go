package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/intersection/pkg/intersection"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("ImageCRUD", s.TestImageCRUD)
	t.Run("ReplaceImage", s.TestReplaceImage)
	t.Run("ListOrdered", s.TestListOrdered)
	t.Run("Clear", s.TestClear)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("ErrorHandling", s.TestErrorHandling)
}

func testImage(road intersection.Road, payload string) *RoadImage {
	return &RoadImage{
		Road:        road,
		Filename:    string(road) + ".jpg",
		ContentType: "image/jpeg",
		Data:        []byte(payload),
		UploadedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// TestImageCRUD tests save, get and delete.
func (s *StorageTestSuite) TestImageCRUD(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	img := testImage("Road 1", "jpeg-bytes")
	if err := store.SaveImage(ctx, img); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	got, err := store.GetImage(ctx, "Road 1")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if string(got.Data) != "jpeg-bytes" || got.ContentType != "image/jpeg" || got.Filename != "Road 1.jpg" {
		t.Errorf("GetImage returned %+v", got)
	}
	if !got.UploadedAt.Equal(img.UploadedAt) {
		t.Errorf("UploadedAt = %v, want %v", got.UploadedAt, img.UploadedAt)
	}

	// Returned images are copies.
	got.Data[0] = 'X'
	again, _ := store.GetImage(ctx, "Road 1")
	if again.Data[0] != 'j' {
		t.Error("GetImage exposes stored bytes")
	}

	if err := store.DeleteImage(ctx, "Road 1"); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	_, err = store.GetImage(ctx, "Road 1")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

// TestReplaceImage tests that a second upload replaces the first.
func (s *StorageTestSuite) TestReplaceImage(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveImage(ctx, testImage("Road 2", "first")); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if err := store.SaveImage(ctx, testImage("Road 2", "second")); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	got, err := store.GetImage(ctx, "Road 2")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if string(got.Data) != "second" {
		t.Errorf("data = %q, want second", got.Data)
	}
	list, _ := store.ListImages(ctx)
	if len(list) != 1 {
		t.Errorf("ListImages returned %d images, want 1", len(list))
	}
}

// TestListOrdered tests that images are listed by road name.
func (s *StorageTestSuite) TestListOrdered(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for _, r := range []intersection.Road{"Road 3", "Road 1", "Road 2"} {
		if err := store.SaveImage(ctx, testImage(r, "x")); err != nil {
			t.Fatalf("SaveImage failed: %v", err)
		}
	}
	list, err := store.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListImages returned %d images, want 3", len(list))
	}
	for i, want := range []intersection.Road{"Road 1", "Road 2", "Road 3"} {
		if list[i].Road != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Road, want)
		}
	}
}

// TestClear tests removing every image.
func (s *StorageTestSuite) TestClear(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		road := intersection.Road(fmt.Sprintf("Road %d", i))
		if err := store.SaveImage(ctx, testImage(road, "x")); err != nil {
			t.Fatalf("SaveImage failed: %v", err)
		}
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	list, err := store.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListImages after Clear returned %d images", len(list))
	}
	// Clearing an empty store is fine.
	if err := store.Clear(ctx); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
}

// TestConcurrentAccess tests parallel uploads and reads.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			road := intersection.Road(fmt.Sprintf("Road %d", i%4+1))
			if err := store.SaveImage(ctx, testImage(road, fmt.Sprintf("img-%d", i))); err != nil {
				t.Errorf("SaveImage failed: %v", err)
				return
			}
			if _, err := store.ListImages(ctx); err != nil {
				t.Errorf("ListImages failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := store.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(list) != 4 {
		t.Errorf("ListImages returned %d images, want 4", len(list))
	}
}

// TestErrorHandling tests invalid input and missing entities.
func (s *StorageTestSuite) TestErrorHandling(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	var invalid *InvalidImageError
	if err := store.SaveImage(ctx, nil); !errors.As(err, &invalid) {
		t.Errorf("SaveImage(nil) error = %v", err)
	}
	if err := store.SaveImage(ctx, &RoadImage{Road: "Road 1"}); !errors.As(err, &invalid) {
		t.Errorf("SaveImage(empty data) error = %v", err)
	}

	var nf *NotFoundError
	if _, err := store.GetImage(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("GetImage(missing) error = %v", err)
	}
	if err := store.DeleteImage(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("DeleteImage(missing) error = %v", err)
	}
}
