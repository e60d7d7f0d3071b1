package blobstore_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"docarc/internal/blobstore"
)

func TestFileSystemStore(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	store, err := blobstore.NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	local := filepath.Join(t.TempDir(), "object.zip")
	content := []byte("object bytes")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatalf("writing local file: %v", err)
	}

	if err := store.Upload(ctx, local, "abc.zip"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	ok, err := store.Exists(ctx, "abc.zip")
	if err != nil || !ok {
		t.Errorf("Exists() = (%v, %v), want true", ok, err)
	}
	ok, err = store.Exists(ctx, "missing.zip")
	if err != nil || ok {
		t.Errorf("Exists(missing) = (%v, %v), want false", ok, err)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 {
		t.Errorf("List() returned %d names, want 1", len(names))
	}
	if _, ok := names["abc.zip"]; !ok {
		t.Error("List() missing abc.zip")
	}

	got, err := os.ReadFile(filepath.Join(root, "abc.zip"))
	if err != nil || !bytes.Equal(got, content) {
		t.Errorf("stored object = (%q, %v), want %q", got, err, content)
	}
}
