package archive

import "database/sql"

// Document is a catalog entry for one archived file. FilePath is the
// canonical archive filename (digest + extension), never a full path.
// VolumeNumber is required (and non-negative) whenever SeriesName is set.
type Document struct {
	ID           int64
	Title        string
	FilePath     string
	SeriesName   sql.NullString
	VolumeNumber sql.NullInt64
}

// Validate checks the series/volume relationship.
func (d *Document) Validate() error {
	if d.SeriesName.Valid && !d.VolumeNumber.Valid {
		return ErrSeriesNeedsVolume
	}
	if d.VolumeNumber.Valid && d.VolumeNumber.Int64 < 0 {
		return ErrNegativeVolume
	}
	return nil
}

// Author is a normalized author entity, deduplicated by exact name.
type Author struct {
	ID   int64
	Name string
}

// Tag is a normalized tag entity. SourceAlias is the name an external source
// uses for this tag, so tags discovered under different names deduplicate.
type Tag struct {
	ID          int64
	Name        string
	GroupID     sql.NullInt64
	SourceAlias sql.NullString
}

// TagGroup is a tag category (series/character/general and so on).
type TagGroup struct {
	ID   int64
	Name string
}

// Source is an external source system documents can be linked to.
type Source struct {
	ID      int64
	Name    string
	BaseURL sql.NullString
}

// SourceLink associates a document with its identifier in an external
// source. At most one local document may claim a given (source, external id)
// pair; this is how ingestion knows an external item already exists locally.
type SourceLink struct {
	DocumentID int64
	SourceID   int64
	ExternalID string
}

// Catalog is the relational metadata store consumed by the archive core.
// Lookups return (nil, nil) when the entity does not exist. Uniqueness
// violations surface as *IntegrityError with the transaction rolled back.
type Catalog interface {
	// Document operations

	FindDocumentByID(id int64) (*Document, error)
	FindDocumentByFilePath(name string) (*Document, error)
	// FindDocumentBySource returns the document linked to (sourceID, externalID).
	FindDocumentBySource(sourceID int64, externalID string) (*Document, error)
	// FindDocumentByExternalID searches across all sources. Used by
	// replace-by-source, where files are named by external id alone.
	FindDocumentByExternalID(externalID string) (*Document, error)
	// UpdateDocumentFilePath points a document at a new canonical filename.
	UpdateDocumentFilePath(id int64, name string) error
	DeleteDocument(id int64) error
	ListFilePaths() ([]string, error)
	ListDocumentIDs() ([]int64, error)

	// IngestDocument inserts the document, its authors (created on demand,
	// deduplicated by exact name), its tag links, and its source link in a
	// single transaction. Partial writes are never observable. If doc.ID is
	// non-zero the explicit id is used (remote catalog imports).
	// Returns the document id.
	IngestDocument(doc *Document, authors []string, tagIDs []int64, link *SourceLink) (int64, error)

	// Dimension lookups

	DocumentAuthors(docID int64) ([]Author, error)
	DocumentTags(docID int64) ([]Tag, error)
	// SourceLinkFor returns the source link for a document, nil if unlinked.
	SourceLinkFor(docID int64) (*SourceLink, error)

	FindTagByName(name string) (*Tag, error)
	FindTagByAlias(alias string) (*Tag, error)
	// InsertTag creates a tag. A non-zero tag.ID is inserted explicitly.
	InsertTag(tag *Tag) (int64, error)
	ListTagGroups() ([]TagGroup, error)
	FindTagGroupByName(name string) (*TagGroup, error)
	InsertTagGroup(name string) (int64, error)

	FindSourceByName(name string) (*Source, error)
	InsertSource(name, baseURL string) (int64, error)
	ListSources() ([]Source, error)

	// Link operations

	LinkTag(docID, tagID int64) error
	LinkSource(docID, sourceID int64, externalID string) error

	// BackupTo writes a consistent snapshot of the catalog to destPath.
	BackupTo(destPath string) error

	Close() error
}
