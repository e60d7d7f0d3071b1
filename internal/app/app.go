package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"docarc/internal/archive"
	"docarc/internal/blobstore"
	"docarc/internal/config"
	"docarc/internal/database"
	"docarc/internal/encryption"
	"docarc/internal/sourceclient"
	"docarc/internal/tasks"
)

// ArchiveApp is the application layer between the CLI and the archive
// Service. It constructs all dependencies from config, exposes high-level
// operations, and manages the catalog lifecycle on Close.
type ArchiveApp struct {
	cfg     *config.Config
	catalog archive.Catalog
	store   *archive.ContentStore
	service *archive.Service
	manager *tasks.Manager
	logger  archive.Logger
	logFile *os.File
}

// NewArchiveApp creates a fully wired ArchiveApp from the given config.
// operation identifies the CLI command being run (e.g. "Ingest", "Backup").
// The caller must call Close when done.
func NewArchiveApp(ctx context.Context, cfg *config.Config, operation string) (*ArchiveApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := archive.NewContentStore(cfg.ArchiveDir, cfg.ThumbnailDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	catalog, err := database.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	source, err := sourceclient.NewSourceClientFromConfig(cfg.Source,
		time.Duration(cfg.FetchTimeoutSeconds)*time.Second)
	if err != nil {
		catalog.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating source client: %w", err)
	}

	blobs, err := blobstore.NewBlobStoreFromConfig(ctx, cfg.BlobStore)
	if err != nil {
		catalog.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	encryptor := encryption.NewEncryptorFromConfig(cfg.Backup)

	svc := archive.NewService(catalog, store, source, blobs, encryptor, logger, archive.RealClock{})

	return &ArchiveApp{
		cfg:     cfg,
		catalog: catalog,
		store:   store,
		service: svc,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Service exposes the underlying archive service.
func (a *ArchiveApp) Service() *archive.Service { return a.service }

// ensureSource finds or creates the catalog source row with the given name
// (the configured source when empty) and returns its id.
func (a *ArchiveApp) ensureSource(name string) (int64, error) {
	if name == "" {
		name = a.cfg.Source.Name
	}
	if name == "" {
		return 0, fmt.Errorf("source name not configured")
	}
	src, err := a.catalog.FindSourceByName(name)
	if err != nil {
		return 0, err
	}
	if src != nil {
		return src.ID, nil
	}
	return a.catalog.InsertSource(name, a.cfg.Source.BaseURL)
}

// Ingest downloads and catalogs the given external ids through the task
// manager's worker pool, blocking until every task reaches a terminal
// status. sourceName overrides the configured source when non-empty.
// Returns the final task list.
func (a *ArchiveApp) Ingest(ctx context.Context, externalIDs []string, mappings map[string]archive.TagMapping, sourceName string) ([]*tasks.Task, error) {
	sourceID, err := a.ensureSource(sourceName)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}

	run := func(ctx context.Context, subject string, progress func(float64)) error {
		_, err := a.service.Ingest(ctx, archive.IngestRequest{
			SourceID:    sourceID,
			ExternalID:  subject,
			TagMappings: mappings,
			Progress:    progress,
		})
		return err
	}

	m := tasks.NewManager(a.cfg.Workers, run, a.logger, nil, nil)
	a.manager = m
	for _, id := range externalIDs {
		if _, err := m.Submit(id); err != nil {
			if errors.Is(err, tasks.ErrAlreadyInProgress) {
				a.logger.Warn("duplicate external id skipped", "external_id", id)
				continue
			}
			return m.List(), err
		}
	}

	if err := a.waitForTasks(ctx, m); err != nil {
		return m.List(), err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		return m.List(), err
	}
	return m.List(), nil
}

// waitForTasks polls until every task is terminal or ctx is done.
func (a *ArchiveApp) waitForTasks(ctx context.Context, m *tasks.Manager) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending := 0
		for _, t := range m.List() {
			if !t.Status.Terminal() {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FixHash repairs files whose name disagrees with their content.
func (a *ArchiveApp) FixHash() (*archive.RepairReport, error) {
	return a.service.FixMismatches()
}

// Verify checks every archived file against its name without modifying
// anything.
func (a *ArchiveApp) Verify() ([]archive.RepairAction, int, error) {
	return a.service.VerifyArchive()
}

// WanderingFiles lists files on disk that no catalog row references.
func (a *ArchiveApp) WanderingFiles() ([]string, error) {
	return a.service.WanderingFiles()
}

// RemoveWandering deletes the given wandering files.
func (a *ArchiveApp) RemoveWandering(names []string) error {
	return a.service.RemoveWandering(names)
}

// Recover re-downloads cataloged files missing from disk.
func (a *ArchiveApp) Recover(ctx context.Context) (*archive.RecoveryReport, error) {
	return a.service.RecoverMissing(ctx)
}

// Pull imports documents from another catalog database file.
func (a *ArchiveApp) Pull(ctx context.Context, remotePath string) (*archive.ImportReport, error) {
	if _, err := os.Stat(remotePath); err != nil {
		return nil, fmt.Errorf("remote catalog: %w", err)
	}
	remote, err := database.NewSQLiteCatalog(remotePath)
	if err != nil {
		return nil, fmt.Errorf("opening remote catalog: %w", err)
	}
	defer remote.Close()
	if err := remote.CheckSchema(); err != nil {
		return nil, fmt.Errorf("remote catalog: %w", err)
	}
	return a.service.ImportRemote(ctx, remote)
}

// Backup uploads a catalog snapshot and any archive files the blob store
// lacks.
func (a *ArchiveApp) Backup(ctx context.Context) (*archive.BackupReport, error) {
	return a.service.Backup(ctx)
}

// Thumbnails generates thumbnails for documents that lack one.
func (a *ArchiveApp) Thumbnails() (*archive.ThumbnailReport, error) {
	return a.service.CheckThumbnails()
}

// Replace swaps a document's content for a corrected local file.
func (a *ArchiveApp) Replace(localPath string) (*archive.Document, error) {
	return a.service.ReplaceFromFile(localPath)
}

// Close releases the catalog and the log file.
func (a *ArchiveApp) Close() error {
	var firstErr error
	if a.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.manager.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	if err := a.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
