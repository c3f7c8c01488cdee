// Package blobstore stores raw submission documents by queue item id.
// It defines the Store interface, a filesystem implementation backing the
// durable queue, and an in-memory implementation for tests.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrEmptyBlob    = errors.New("blob content is empty")
)

// MaxBlobSize is the maximum allowed document size in bytes (10 MB).
const MaxBlobSize = 10 * 1024 * 1024

// Store is the contract for document blob storage backends. Blobs are
// addressed by the queue item id that owns them.
type Store interface {
	Put(ctx context.Context, id string, content io.Reader) (url string, err error)
	Get(ctx context.Context, id string) ([]byte, error)
	// Delete removes the blob. Deleting a blob that is already gone is a
	// no-op so that delete stays idempotent under concurrent drains.
	Delete(ctx context.Context, id string) error
}

// FSStore persists one file per queue item under a base directory. The
// returned URL is the absolute file path, which is what gets recorded on
// the pending item.
type FSStore struct {
	dir string
}

// NewFSStore creates the base directory if needed and returns a ready store.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+".xml")
}

func (s *FSStore) Put(_ context.Context, id string, content io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxBlobSize+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	if len(data) > MaxBlobSize {
		return "", fmt.Errorf("blob exceeds maximum size of %d bytes", MaxBlobSize)
	}

	p := s.path(id)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", id, err)
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return p, nil
	}
	return abs, nil
}

func (s *FSStore) Get(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// MemStore is a thread-safe, in-memory Store for tests.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore returns a ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Put(_ context.Context, id string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}

	s.mu.Lock()
	s.blobs[id] = bytes.Clone(data)
	s.mu.Unlock()

	return "mem://" + id, nil
}

func (s *MemStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	return bytes.Clone(data), nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}
