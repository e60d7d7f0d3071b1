package database

// Schema is the complete catalog schema as a single script, kept in lockstep
// with the migration files. Tests apply it directly to in-memory databases
// instead of running the migration machinery.
const Schema = `
CREATE TABLE documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    file_path TEXT NOT NULL UNIQUE,
    series_name TEXT,
    volume_number INTEGER,
    CHECK (series_name IS NULL OR volume_number IS NOT NULL),
    CHECK (volume_number IS NULL OR volume_number >= 0)
);

CREATE TABLE authors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE document_authors (
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    author_id INTEGER NOT NULL REFERENCES authors(id),
    PRIMARY KEY (document_id, author_id)
);

CREATE TABLE tag_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    group_id INTEGER REFERENCES tag_groups(id),
    source_alias TEXT UNIQUE
);

CREATE TABLE document_tags (
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    tag_id INTEGER NOT NULL REFERENCES tags(id),
    PRIMARY KEY (document_id, tag_id)
);

CREATE TABLE sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    base_url TEXT
);

CREATE TABLE document_sources (
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source_id INTEGER NOT NULL REFERENCES sources(id),
    external_id TEXT NOT NULL,
    PRIMARY KEY (document_id, source_id, external_id),
    UNIQUE (source_id, external_id)
);

CREATE INDEX idx_documents_file_path ON documents(file_path);
CREATE INDEX idx_document_sources_external ON document_sources(source_id, external_id);
`
