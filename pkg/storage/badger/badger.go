// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/storage"
)

const imagePrefix = "image:"

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	// InMemory runs Badger without touching disk; Path is ignored.
	InMemory bool
}

// BadgerStorage implements the Storage interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Path)
		opts.SyncWrites = config.SyncWrites
	}
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

func imageKey(road intersection.Road) []byte {
	return []byte(imagePrefix + string(road))
}

func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// SaveImage saves an image to Badger.
func (b *BadgerStorage) SaveImage(ctx context.Context, img *storage.RoadImage) error {
	if err := storage.ValidateImage(img); err != nil {
		return err
	}
	toSave := img.Clone()
	if toSave.UploadedAt.IsZero() {
		toSave.UploadedAt = time.Now().UTC()
	}

	data, err := serialize(toSave)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(imageKey(img.Road), data)
	})
}

// GetImage retrieves the image for road.
func (b *BadgerStorage) GetImage(ctx context.Context, road intersection.Road) (*storage.RoadImage, error) {
	var img storage.RoadImage
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(road))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &storage.NotFoundError{EntityType: "image", ID: string(road)}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return deserialize(val, &img)
		})
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// ListImages returns every stored image. Badger iterates keys in byte order,
// which is road name order.
func (b *BadgerStorage) ListImages(ctx context.Context) ([]*storage.RoadImage, error) {
	var out []*storage.RoadImage
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(imagePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var img storage.RoadImage
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &img)
			}); err != nil {
				return err
			}
			out = append(out, &img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*storage.RoadImage{}
	}
	return out, nil
}

// DeleteImage removes the image for road.
func (b *BadgerStorage) DeleteImage(ctx context.Context, road intersection.Road) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := imageKey(road)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{EntityType: "image", ID: string(road)}
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Clear removes every stored image.
func (b *BadgerStorage) Clear(ctx context.Context) error {
	return b.db.DropPrefix([]byte(imagePrefix))
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
