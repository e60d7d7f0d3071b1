package archive

import (
	"context"
	"io"
)

// SourceMetadata is what an external source reports about one item.
// Tags are source-side names (aliases), resolved against the catalog's
// tag table during ingestion.
type SourceMetadata struct {
	Title   string
	Authors []string
	Tags    []string
}

// SourceClient fetches comic metadata and content from an external source.
// Network, auth, and rate-limiting details live behind this boundary.
type SourceClient interface {
	// FetchMetadata returns the title, authors, and tag aliases for an item.
	FetchMetadata(ctx context.Context, externalID string) (*SourceMetadata, error)

	// FetchContent returns a stream of the item's bytes. size is the total
	// expected byte count, or -1 if the source does not report one.
	FetchContent(ctx context.Context, externalID string) (rc io.ReadCloser, size int64, err error)
}
