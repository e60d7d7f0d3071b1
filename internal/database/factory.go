package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docarc/internal/archive"
	"docarc/internal/config"
	"docarc/internal/database/migrations"
)

// NewCatalogFromConfig creates a Catalog implementation based on the
// database config type. File-backed catalogs are migrated to the latest
// schema on open.
func NewCatalogFromConfig(cfg config.DatabaseConfig) (archive.Catalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return Open(filepath.Join(cfg.DataDir, "catalog.db"))
	case "memory":
		return Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Open opens a catalog at path and brings its schema up to date.
func Open(path string) (*SQLiteCatalog, error) {
	c, err := NewSQLiteCatalog(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(c.db); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
