package archive

import "context"

// BlobStore is the optional secondary backup tier. Used only by the backup
// batch job, never by the hot ingestion path.
type BlobStore interface {
	// Upload stores the file at localPath under name. Returns ErrTooLarge
	// if the backend refuses the file because of its size.
	Upload(ctx context.Context, localPath, name string) error

	// Exists reports whether name is present in the store.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the set of stored names.
	List(ctx context.Context) (map[string]struct{}, error)
}
