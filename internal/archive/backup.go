package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BackupReport summarizes a Backup pass.
type BackupReport struct {
	SnapshotName string
	Uploaded     []string
	// TooLarge files exceed the remote's object size limit. They are
	// reported and skipped; the rest of the backup proceeds.
	TooLarge []string
	Failures []RepairAction
}

// Backup uploads a consistent catalog snapshot and every archive file the
// remote store does not already hold. Content-addressed names make the
// set difference exact: a name present remotely is byte-identical content.
func (s *Service) Backup(ctx context.Context) (*BackupReport, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("no backup store configured")
	}

	report := &BackupReport{}
	if err := s.backupCatalog(ctx, report); err != nil {
		return nil, err
	}

	remote, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing backup store: %w", err)
	}
	local, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	for name := range local {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := remote[name]; ok {
			continue
		}
		err := s.blobs.Upload(ctx, s.store.Path(name), name)
		if errors.Is(err, ErrTooLarge) {
			s.logger.Warn("file exceeds backup size limit", "file", name)
			report.TooLarge = append(report.TooLarge, name)
			continue
		}
		if err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: name, Error: err.Error()})
			continue
		}
		s.logger.Info("file backed up", "file", name)
		report.Uploaded = append(report.Uploaded, name)
	}
	return report, nil
}

// backupCatalog snapshots the catalog to a temp file, encrypts it when an
// encryptor is configured, and uploads the result under a timestamped name.
func (s *Service) backupCatalog(ctx context.Context, report *BackupReport) error {
	dir, err := os.MkdirTemp("", "catalog-backup-")
	if err != nil {
		return fmt.Errorf("creating backup temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "catalog.db")
	if err := s.catalog.BackupTo(snapshot); err != nil {
		return fmt.Errorf("snapshotting catalog: %w", err)
	}

	name := fmt.Sprintf("catalog-%s.db", s.clock.Now().UTC().Format("20060102T150405Z"))
	upload := snapshot
	if s.encryptor != nil {
		encrypted := snapshot + ".age"
		if err := encryptFile(s.encryptor, snapshot, encrypted); err != nil {
			return fmt.Errorf("encrypting catalog snapshot: %w", err)
		}
		upload = encrypted
		name += ".age"
	}

	if err := s.blobs.Upload(ctx, upload, name); err != nil {
		return fmt.Errorf("uploading catalog snapshot: %w", err)
	}
	s.logger.Info("catalog snapshot backed up", "name", name)
	report.SnapshotName = name
	return nil
}

func encryptFile(enc Encryptor, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
