package archive

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a catalog entity or archived file does not exist.
var ErrNotFound = errors.New("not found")

// ErrTooLarge is returned by a BlobStore that refuses an upload because the
// file exceeds the backend's size limit.
var ErrTooLarge = errors.New("file too large for blob store")

// ErrSeriesNeedsVolume is returned when a document carries a series name
// without a volume number.
var ErrSeriesNeedsVolume = errors.New("series name requires a volume number")

// ErrNegativeVolume is returned when a volume number is negative.
var ErrNegativeVolume = errors.New("volume number must be non-negative")

// CollisionError reports that content with this canonical name is already
// archived. Callers treat it as "already have it", never as data loss:
// the existing file is never overwritten.
type CollisionError struct {
	Name string // canonical filename that already exists
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("content already archived as %s", e.Name)
}

// FetchError reports a failed or timed-out fetch from an external source.
// Retryable by resubmitting the task.
type FetchError struct {
	ExternalID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.ExternalID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MissingTagMappingError reports a source-side tag alias that is neither
// known to the catalog nor covered by a caller-supplied mapping. Ingestion
// never invents tag taxonomy on its own.
type MissingTagMappingError struct {
	Alias string
}

func (e *MissingTagMappingError) Error() string {
	return fmt.Sprintf("no tag mapping for source alias %q", e.Alias)
}

// MissingGroupMappingError reports a tag mapping that was supplied without
// a tag group.
type MissingGroupMappingError struct {
	Alias string
}

func (e *MissingGroupMappingError) Error() string {
	return fmt.Sprintf("tag mapping for source alias %q has no group", e.Alias)
}

// IntegrityError reports a catalog uniqueness or foreign-key violation.
// The enclosing transaction has been rolled back.
type IntegrityError struct {
	Constraint string
	Err        error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("catalog integrity violation (%s): %v", e.Constraint, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// HashMismatchError reports content whose digest disagrees with the digest
// recorded elsewhere (filename or catalog). Fatal for that item: it signals
// corruption or a swapped source item and is never silently accepted.
type HashMismatchError struct {
	Name string // filename or external id the content was obtained for
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: want %s, got %s", e.Name, e.Want, e.Got)
}
