package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"docarc/internal/archive"
	"docarc/internal/database/migrations"
)

// SQLiteCatalog implements the archive.Catalog interface using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog creates a new SQLite catalog connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

// NewSQLiteCatalogFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured
// SQLite connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; cap the pool at one so
	// every statement sees the same database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// CheckSchema verifies that the underlying database is at the schema version
// this binary expects, without running any migrations. Callers use it before
// reading a catalog they do not own, such as a pulled remote snapshot.
func (c *SQLiteCatalog) CheckSchema() error {
	return migrations.CheckStatus(c.db)
}

// wrapErr converts SQLite constraint violations into *archive.IntegrityError
// and wraps everything else with the operation name.
func wrapErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &archive.IntegrityError{Constraint: se.ExtendedCode.Error(), Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Document operations

const documentColumns = "id, title, file_path, series_name, volume_number"

func scanDocument(row *sql.Row) (*archive.Document, error) {
	var d archive.Document
	err := row.Scan(&d.ID, &d.Title, &d.FilePath, &d.SeriesName, &d.VolumeNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &d, nil
}

func (c *SQLiteCatalog) FindDocumentByID(id int64) (*archive.Document, error) {
	doc, err := scanDocument(c.db.QueryRow(
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return doc, nil
}

func (c *SQLiteCatalog) FindDocumentByFilePath(name string) (*archive.Document, error) {
	doc, err := scanDocument(c.db.QueryRow(
		"SELECT "+documentColumns+" FROM documents WHERE file_path = ?", name))
	if err != nil {
		return nil, fmt.Errorf("finding document by file path: %w", err)
	}
	return doc, nil
}

func (c *SQLiteCatalog) FindDocumentBySource(sourceID int64, externalID string) (*archive.Document, error) {
	doc, err := scanDocument(c.db.QueryRow(
		"SELECT d.id, d.title, d.file_path, d.series_name, d.volume_number "+
			"FROM documents d JOIN document_sources ds ON ds.document_id = d.id "+
			"WHERE ds.source_id = ? AND ds.external_id = ?", sourceID, externalID))
	if err != nil {
		return nil, fmt.Errorf("finding document by source link: %w", err)
	}
	return doc, nil
}

func (c *SQLiteCatalog) FindDocumentByExternalID(externalID string) (*archive.Document, error) {
	doc, err := scanDocument(c.db.QueryRow(
		"SELECT d.id, d.title, d.file_path, d.series_name, d.volume_number "+
			"FROM documents d JOIN document_sources ds ON ds.document_id = d.id "+
			"WHERE ds.external_id = ?", externalID))
	if err != nil {
		return nil, fmt.Errorf("finding document by external id: %w", err)
	}
	return doc, nil
}

func (c *SQLiteCatalog) UpdateDocumentFilePath(id int64, name string) error {
	res, err := c.db.Exec("UPDATE documents SET file_path = ? WHERE id = ?", name, id)
	if err != nil {
		return wrapErr("updating document file path", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document file path: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %d: %w", id, archive.ErrNotFound)
	}
	return nil
}

func (c *SQLiteCatalog) DeleteDocument(id int64) error {
	res, err := c.db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return wrapErr("deleting document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %d: %w", id, archive.ErrNotFound)
	}
	return nil
}

func (c *SQLiteCatalog) ListFilePaths() ([]string, error) {
	rows, err := c.db.Query("SELECT file_path FROM documents ORDER BY file_path")
	if err != nil {
		return nil, fmt.Errorf("listing file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning file path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (c *SQLiteCatalog) ListDocumentIDs() ([]int64, error) {
	rows, err := c.db.Query("SELECT id FROM documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLiteCatalog) IngestDocument(doc *archive.Document, authors []string, tagIDs []int64, link *archive.SourceLink) (int64, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}

	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback()

	var docID int64
	if doc.ID != 0 {
		_, err = tx.Exec(
			"INSERT INTO documents (id, title, file_path, series_name, volume_number) VALUES (?, ?, ?, ?, ?)",
			doc.ID, doc.Title, doc.FilePath, doc.SeriesName, doc.VolumeNumber)
		if err != nil {
			return 0, wrapErr("inserting document", err)
		}
		docID = doc.ID
	} else {
		res, err := tx.Exec(
			"INSERT INTO documents (title, file_path, series_name, volume_number) VALUES (?, ?, ?, ?)",
			doc.Title, doc.FilePath, doc.SeriesName, doc.VolumeNumber)
		if err != nil {
			return 0, wrapErr("inserting document", err)
		}
		docID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("inserting document: %w", err)
		}
	}

	for _, name := range authors {
		if _, err := tx.Exec("INSERT OR IGNORE INTO authors (name) VALUES (?)", name); err != nil {
			return 0, wrapErr("inserting author", err)
		}
		var authorID int64
		if err := tx.QueryRow("SELECT id FROM authors WHERE name = ?", name).Scan(&authorID); err != nil {
			return 0, fmt.Errorf("finding author %q: %w", name, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO document_authors (document_id, author_id) VALUES (?, ?)",
			docID, authorID); err != nil {
			return 0, wrapErr("linking author", err)
		}
	}

	for _, tagID := range tagIDs {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)",
			docID, tagID); err != nil {
			return 0, wrapErr("linking tag", err)
		}
	}

	if link != nil {
		if _, err := tx.Exec(
			"INSERT INTO document_sources (document_id, source_id, external_id) VALUES (?, ?, ?)",
			docID, link.SourceID, link.ExternalID); err != nil {
			return 0, wrapErr("linking source", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing ingest transaction: %w", err)
	}
	return docID, nil
}

// Dimension lookups

func (c *SQLiteCatalog) DocumentAuthors(docID int64) ([]archive.Author, error) {
	rows, err := c.db.Query(
		"SELECT a.id, a.name FROM authors a "+
			"JOIN document_authors da ON da.author_id = a.id "+
			"WHERE da.document_id = ? ORDER BY a.name", docID)
	if err != nil {
		return nil, fmt.Errorf("listing document authors: %w", err)
	}
	defer rows.Close()

	var authors []archive.Author
	for rows.Next() {
		var a archive.Author
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (c *SQLiteCatalog) DocumentTags(docID int64) ([]archive.Tag, error) {
	rows, err := c.db.Query(
		"SELECT t.id, t.name, t.group_id, t.source_alias FROM tags t "+
			"JOIN document_tags dt ON dt.tag_id = t.id "+
			"WHERE dt.document_id = ? ORDER BY t.name", docID)
	if err != nil {
		return nil, fmt.Errorf("listing document tags: %w", err)
	}
	defer rows.Close()

	var tags []archive.Tag
	for rows.Next() {
		var t archive.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.GroupID, &t.SourceAlias); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (c *SQLiteCatalog) SourceLinkFor(docID int64) (*archive.SourceLink, error) {
	var l archive.SourceLink
	// A deduplicated document can carry several links; the oldest one is
	// the authoritative fetch location.
	err := c.db.QueryRow(
		"SELECT document_id, source_id, external_id FROM document_sources WHERE document_id = ? ORDER BY rowid LIMIT 1",
		docID).Scan(&l.DocumentID, &l.SourceID, &l.ExternalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Unlinked
		}
		return nil, fmt.Errorf("finding source link: %w", err)
	}
	return &l, nil
}

// Tag operations

func scanTag(row *sql.Row) (*archive.Tag, error) {
	var t archive.Tag
	err := row.Scan(&t.ID, &t.Name, &t.GroupID, &t.SourceAlias)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &t, nil
}

func (c *SQLiteCatalog) FindTagByName(name string) (*archive.Tag, error) {
	tag, err := scanTag(c.db.QueryRow(
		"SELECT id, name, group_id, source_alias FROM tags WHERE name = ?", name))
	if err != nil {
		return nil, fmt.Errorf("finding tag by name: %w", err)
	}
	return tag, nil
}

func (c *SQLiteCatalog) FindTagByAlias(alias string) (*archive.Tag, error) {
	// An alias may match either the recorded source alias or the canonical
	// name directly.
	tag, err := scanTag(c.db.QueryRow(
		"SELECT id, name, group_id, source_alias FROM tags WHERE source_alias = ? OR name = ?",
		alias, alias))
	if err != nil {
		return nil, fmt.Errorf("finding tag by alias: %w", err)
	}
	return tag, nil
}

func (c *SQLiteCatalog) InsertTag(tag *archive.Tag) (int64, error) {
	if tag.ID != 0 {
		_, err := c.db.Exec(
			"INSERT INTO tags (id, name, group_id, source_alias) VALUES (?, ?, ?, ?)",
			tag.ID, tag.Name, tag.GroupID, tag.SourceAlias)
		if err != nil {
			return 0, wrapErr("inserting tag", err)
		}
		return tag.ID, nil
	}
	res, err := c.db.Exec(
		"INSERT INTO tags (name, group_id, source_alias) VALUES (?, ?, ?)",
		tag.Name, tag.GroupID, tag.SourceAlias)
	if err != nil {
		return 0, wrapErr("inserting tag", err)
	}
	return res.LastInsertId()
}

func (c *SQLiteCatalog) ListTagGroups() ([]archive.TagGroup, error) {
	rows, err := c.db.Query("SELECT id, name FROM tag_groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing tag groups: %w", err)
	}
	defer rows.Close()

	var groups []archive.TagGroup
	for rows.Next() {
		var g archive.TagGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scanning tag group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (c *SQLiteCatalog) FindTagGroupByName(name string) (*archive.TagGroup, error) {
	var g archive.TagGroup
	err := c.db.QueryRow("SELECT id, name FROM tag_groups WHERE name = ?", name).
		Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding tag group by name: %w", err)
	}
	return &g, nil
}

func (c *SQLiteCatalog) InsertTagGroup(name string) (int64, error) {
	res, err := c.db.Exec("INSERT INTO tag_groups (name) VALUES (?)", name)
	if err != nil {
		return 0, wrapErr("inserting tag group", err)
	}
	return res.LastInsertId()
}

// Source operations

func (c *SQLiteCatalog) FindSourceByName(name string) (*archive.Source, error) {
	var s archive.Source
	err := c.db.QueryRow("SELECT id, name, base_url FROM sources WHERE name = ?", name).
		Scan(&s.ID, &s.Name, &s.BaseURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding source by name: %w", err)
	}
	return &s, nil
}

func (c *SQLiteCatalog) InsertSource(name, baseURL string) (int64, error) {
	var u sql.NullString
	if baseURL != "" {
		u.String, u.Valid = baseURL, true
	}
	res, err := c.db.Exec("INSERT INTO sources (name, base_url) VALUES (?, ?)", name, u)
	if err != nil {
		return 0, wrapErr("inserting source", err)
	}
	return res.LastInsertId()
}

func (c *SQLiteCatalog) ListSources() ([]archive.Source, error) {
	rows, err := c.db.Query("SELECT id, name, base_url FROM sources ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []archive.Source
	for rows.Next() {
		var s archive.Source
		if err := rows.Scan(&s.ID, &s.Name, &s.BaseURL); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// Link operations

func (c *SQLiteCatalog) LinkTag(docID, tagID int64) error {
	if _, err := c.db.Exec(
		"INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)",
		docID, tagID); err != nil {
		return wrapErr("linking tag", err)
	}
	return nil
}

func (c *SQLiteCatalog) LinkSource(docID, sourceID int64, externalID string) error {
	if _, err := c.db.Exec(
		"INSERT INTO document_sources (document_id, source_id, external_id) VALUES (?, ?, ?)",
		docID, sourceID, externalID); err != nil {
		return wrapErr("linking source", err)
	}
	return nil
}

// BackupTo writes a consistent snapshot of the catalog to destPath using
// SQLite's VACUUM INTO, which is safe against concurrent readers.
func (c *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := c.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting catalog: %w", err)
	}
	return nil
}
