package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"docarc/internal/archive"
)

// SourceItem is one item a StubSourceClient can serve.
type SourceItem struct {
	Meta    archive.SourceMetadata
	Content []byte
}

// StubSourceClient serves canned items from memory. Unknown ids fail.
// FetchErr, when set, makes every call fail with that error. Safe for
// concurrent use.
type StubSourceClient struct {
	mu       sync.Mutex
	items    map[string]SourceItem
	fetches  []string
	FetchErr error
}

// NewStubSourceClient creates an empty stub source.
func NewStubSourceClient() *StubSourceClient {
	return &StubSourceClient{items: make(map[string]SourceItem)}
}

// Add registers an item under the given external id.
func (s *StubSourceClient) Add(externalID string, item SourceItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[externalID] = item
}

// Fetches returns the external ids passed to FetchContent, in order.
func (s *StubSourceClient) Fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.fetches...)
}

func (s *StubSourceClient) FetchMetadata(_ context.Context, externalID string) (*archive.SourceMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	item, ok := s.items[externalID]
	if !ok {
		return nil, fmt.Errorf("no such item: %s", externalID)
	}
	meta := item.Meta
	return &meta, nil
}

func (s *StubSourceClient) FetchContent(ctx context.Context, externalID string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	if s.FetchErr != nil {
		s.mu.Unlock()
		return nil, 0, s.FetchErr
	}
	item, ok := s.items[externalID]
	if ok {
		s.fetches = append(s.fetches, externalID)
	}
	s.mu.Unlock()

	if !ok {
		return nil, 0, fmt.Errorf("no such item: %s", externalID)
	}
	return io.NopCloser(bytes.NewReader(item.Content)), int64(len(item.Content)), nil
}
