// Package store provides atomic read/modify/write access to JSON-encoded
// collections on durable storage. Each collection is one JSON document;
// a missing or corrupt backing file degrades to the collection's seed value
// so the dashboard stays available. Saves go through a temp file and an
// os.Rename so no reader ever observes a partially written document.
//
// Concurrent in-process writers to the same collection are serialized by a
// per-collection mutex around the load+mutate+save cycle, so two overlapping
// mutations cannot silently discard each other's changes. The file itself is
// purely a durability snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
)

// Collection is a JSON-document-backed collection of type T.
type Collection[T any] struct {
	path   string
	seed   func() T
	logger *slog.Logger

	mu sync.Mutex
}

// NewCollection creates a collection persisted at path. seed produces the
// value returned when the backing file is missing or unreadable; a nil seed
// yields the zero value of T.
func NewCollection[T any](path string, seed func() T, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{path: path, seed: seed, logger: logger}
}

// Path returns the backing file path.
func (c *Collection[T]) Path() string { return c.path }

// Load reads the current collection. It never fails: a missing or corrupt
// file yields the seed value.
func (c *Collection[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// load reads without locking; callers must hold c.mu.
func (c *Collection[T]) load() T {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("collection read failed, using seed", "path", c.path, "error", err)
		}
		return c.seedValue()
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("collection parse failed, using seed", "path", c.path, "error", err)
		return c.seedValue()
	}
	return v
}

func (c *Collection[T]) seedValue() T {
	if c.seed != nil {
		return c.seed()
	}
	var zero T
	return zero
}

// Save replaces the full collection on disk.
func (c *Collection[T]) Save(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(v)
}

// save writes without locking; callers must hold c.mu.
func (c *Collection[T]) save(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &shared.StorageError{Op: "encode", Path: c.path, Err: err}
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &shared.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	// Unique temp name so overlapping processes never clobber each other's
	// in-flight writes.
	tmp := fmt.Sprintf("%s.%d.%s.tmp", c.path, os.Getpid(), uuid.NewString()[:8])
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &shared.StorageError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return &shared.StorageError{Op: "rename", Path: c.path, Err: err}
	}
	return nil
}

// Update runs fn inside the collection's read-modify-write critical section.
// fn receives the freshly loaded value and may mutate it in place; a nil
// return commits the mutated value, any error aborts with no state change.
func (c *Collection[T]) Update(fn func(*T) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.load()
	if err := fn(&v); err != nil {
		return err
	}
	return c.save(v)
}
