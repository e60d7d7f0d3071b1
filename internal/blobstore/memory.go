package blobstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"docarc/internal/archive"
)

// MemoryStore is an in-memory implementation of the BlobStore interface,
// useful for testing. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// MaxObjectSize rejects larger uploads with archive.ErrTooLarge,
	// mimicking a size-limited remote. 0 means no limit.
	MaxObjectSize int64
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, localPath, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}
	if m.MaxObjectSize > 0 && int64(len(data)) > m.MaxObjectSize {
		return archive.ErrTooLarge
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[name]
	return ok, nil
}

func (m *MemoryStore) List(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make(map[string]struct{}, len(m.objects))
	for name := range m.objects {
		names[name] = struct{}{}
	}
	return names, nil
}

// Object returns a stored object's bytes, for test assertions.
func (m *MemoryStore) Object(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	return data, ok
}
