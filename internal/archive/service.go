package archive

import "io"

// Encryptor encrypts a stream. The backup job uses it to protect the
// catalog snapshot before it leaves the machine.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
}

// Service is the orchestration layer coordinating the catalog, content
// store, source client, and blob store for the operations the CLI and the
// task manager need.
type Service struct {
	catalog   Catalog
	store     *ContentStore
	source    SourceClient
	blobs     BlobStore // nil when no backup tier is configured
	encryptor Encryptor // nil when backup encryption is disabled
	logger    Logger
	clock     Clock
}

// NewService creates a Service. source, blobs, and encryptor may be nil;
// operations that need a missing collaborator fail with a clear error.
func NewService(catalog Catalog, store *ContentStore, source SourceClient, blobs BlobStore, encryptor Encryptor, logger Logger, clock Clock) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		catalog:   catalog,
		store:     store,
		source:    source,
		blobs:     blobs,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
	}
}

// Catalog exposes the underlying catalog for read paths the CLI needs
// directly (task-independent queries).
func (s *Service) Catalog() Catalog { return s.catalog }

// Store exposes the content store for CLI-driven file operations.
func (s *Service) Store() *ContentStore { return s.store }
