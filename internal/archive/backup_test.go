package archive_test

import (
	"bytes"
	"context"
	"testing"

	"docarc/internal/archive"
	"docarc/internal/blobstore"
	"docarc/internal/testutil"
)

func TestService_Backup(t *testing.T) {
	t.Run("uploads the snapshot and only missing files", func(t *testing.T) {
		env := newTestEnv(t)
		blobs := blobstore.NewMemoryStore()
		svc := archive.NewService(env.catalog, env.store, nil, blobs, nil, nil, testutil.FixedClock())

		oldContent := []byte("already backed up")
		oldName := testutil.MD5Hex(oldContent) + ".zip"
		seedFile(t, env, oldName, oldContent, "Old")

		newContent := []byte("not yet backed up")
		newName := testutil.MD5Hex(newContent) + ".zip"
		seedFile(t, env, newName, newContent, "New")

		// Pre-seed the remote with the old file.
		if err := blobs.Upload(context.Background(), env.store.Path(oldName), oldName); err != nil {
			t.Fatalf("seeding remote: %v", err)
		}

		report, err := svc.Backup(context.Background())
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if len(report.Uploaded) != 1 || report.Uploaded[0] != newName {
			t.Errorf("uploaded = %v, want [%s]", report.Uploaded, newName)
		}
		if report.SnapshotName == "" {
			t.Error("no snapshot uploaded")
		}
		if _, ok := blobs.Object(report.SnapshotName); !ok {
			t.Errorf("snapshot %s missing from remote", report.SnapshotName)
		}
		if data, ok := blobs.Object(newName); !ok || !bytes.Equal(data, newContent) {
			t.Error("new file missing or corrupted in remote")
		}
	})

	t.Run("encrypts the snapshot when an encryptor is configured", func(t *testing.T) {
		env := newTestEnv(t)
		blobs := blobstore.NewMemoryStore()
		svc := archive.NewService(env.catalog, env.store, nil, blobs, testutil.MarkerEncryptor{}, nil, testutil.FixedClock())

		report, err := svc.Backup(context.Background())
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		data, ok := blobs.Object(report.SnapshotName)
		if !ok {
			t.Fatalf("snapshot %s missing from remote", report.SnapshotName)
		}
		if !bytes.HasPrefix(data, []byte(testutil.EncryptionMarker)) {
			t.Error("snapshot uploaded unencrypted")
		}
	})

	t.Run("oversized files are skipped, not fatal", func(t *testing.T) {
		env := newTestEnv(t)
		blobs := blobstore.NewMemoryStore()
		// Large enough for the catalog snapshot, small enough to reject
		// the oversized archive file below.
		blobs.MaxObjectSize = 64 * 1024
		svc := archive.NewService(env.catalog, env.store, nil, blobs, nil, nil, testutil.FixedClock())

		small := []byte("tiny")
		smallName := testutil.MD5Hex(small) + ".zip"
		seedFile(t, env, smallName, small, "Small")

		big := bytes.Repeat([]byte("oversized "), 8*1024)
		bigName := testutil.MD5Hex(big) + ".zip"
		seedFile(t, env, bigName, big, "Big")

		report, err := svc.Backup(context.Background())
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if len(report.TooLarge) != 1 || report.TooLarge[0] != bigName {
			t.Errorf("too large = %v, want [%s]", report.TooLarge, bigName)
		}
		if len(report.Uploaded) != 1 || report.Uploaded[0] != smallName {
			t.Errorf("uploaded = %v, want [%s]", report.Uploaded, smallName)
		}
	})
}
