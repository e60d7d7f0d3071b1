package archive_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docarc/internal/archive"
	"docarc/internal/testutil"
)

func newTestStore(t *testing.T) *archive.ContentStore {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.NewContentStore(filepath.Join(dir, "archive"), filepath.Join(dir, "thumbs"))
	if err != nil {
		t.Fatalf("NewContentStore() error = %v", err)
	}
	return store
}

func TestContentStore_StageAndAdmit(t *testing.T) {
	t.Run("admitted file is named by its content digest", func(t *testing.T) {
		store := newTestStore(t)
		content := []byte("page one, page two")

		staged, err := store.Stage(bytes.NewReader(content))
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		defer staged.Remove()

		if staged.Digest != testutil.MD5Hex(content) {
			t.Errorf("staged digest = %s, want %s", staged.Digest, testutil.MD5Hex(content))
		}
		if staged.Size != int64(len(content)) {
			t.Errorf("staged size = %d, want %d", staged.Size, len(content))
		}

		name, err := store.Admit(staged, ".zip")
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if want := testutil.MD5Hex(content) + ".zip"; name != want {
			t.Errorf("admitted name = %s, want %s", name, want)
		}

		got, err := os.ReadFile(store.Path(name))
		if err != nil {
			t.Fatalf("reading admitted file: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Error("admitted file content differs from staged content")
		}
		if err := store.Verify(name); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
	})

	t.Run("admitting identical content reports a collision", func(t *testing.T) {
		store := newTestStore(t)
		content := []byte("same bytes")

		first, err := store.Stage(bytes.NewReader(content))
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		defer first.Remove()
		name, err := store.Admit(first, ".zip")
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}

		second, err := store.Stage(bytes.NewReader(content))
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		defer second.Remove()

		_, err = store.Admit(second, ".zip")
		var collision *archive.CollisionError
		if !errors.As(err, &collision) {
			t.Fatalf("Admit() error = %v, want *CollisionError", err)
		}
		if collision.Name != name {
			t.Errorf("collision name = %s, want %s", collision.Name, name)
		}

		// The existing file must be untouched.
		got, err := os.ReadFile(store.Path(name))
		if err != nil || !bytes.Equal(got, content) {
			t.Errorf("existing file damaged after collision: %v", err)
		}
	})

	t.Run("removing a staged file after admit is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		staged, err := store.Stage(bytes.NewReader([]byte("x")))
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		name, err := store.Admit(staged, ".zip")
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		staged.Remove()
		if !store.Exists(name) {
			t.Error("admitted file missing after staged.Remove()")
		}
	})
}

func TestContentStore_AdmitPath(t *testing.T) {
	t.Run("renames a local file into the archive", func(t *testing.T) {
		store := newTestStore(t)
		content := []byte("replacement bytes")
		local := filepath.Join(t.TempDir(), "item.zip")
		if err := os.WriteFile(local, content, 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}

		name, err := store.AdmitPath(local, testutil.MD5Hex(content), ".zip")
		if err != nil {
			t.Fatalf("AdmitPath() error = %v", err)
		}
		if err := store.Verify(name); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
		if _, err := os.Stat(local); !os.IsNotExist(err) {
			t.Errorf("source file still present, Stat() error = %v", err)
		}
	})

	t.Run("copies when the source cannot be renamed", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("rename cannot be made to fail with root privileges")
		}
		store := newTestStore(t)
		content := []byte("cross-device bytes")
		srcDir := filepath.Join(t.TempDir(), "src")
		if err := os.MkdirAll(srcDir, 0755); err != nil {
			t.Fatalf("creating dir: %v", err)
		}
		local := filepath.Join(srcDir, "item.zip")
		if err := os.WriteFile(local, content, 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
		// Rename needs write permission on the source directory; a
		// read-only directory forces the copy fallback, the same path a
		// file on another filesystem takes.
		if err := os.Chmod(srcDir, 0555); err != nil {
			t.Fatalf("chmod: %v", err)
		}
		t.Cleanup(func() { os.Chmod(srcDir, 0755) })

		name, err := store.AdmitPath(local, testutil.MD5Hex(content), ".zip")
		if err != nil {
			t.Fatalf("AdmitPath() error = %v", err)
		}
		if err := store.Verify(name); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
		got, err := os.ReadFile(store.Path(name))
		if err != nil || !bytes.Equal(got, content) {
			t.Errorf("archived content differs from source: %v", err)
		}
	})

	t.Run("existing content reports a collision", func(t *testing.T) {
		store := newTestStore(t)
		content := []byte("already archived")
		staged, err := store.Stage(bytes.NewReader(content))
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		name, err := store.Admit(staged, ".zip")
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}

		local := filepath.Join(t.TempDir(), "dup.zip")
		if err := os.WriteFile(local, content, 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
		_, err = store.AdmitPath(local, testutil.MD5Hex(content), ".zip")
		var collision *archive.CollisionError
		if !errors.As(err, &collision) {
			t.Fatalf("AdmitPath() error = %v, want *CollisionError", err)
		}
		if collision.Name != name {
			t.Errorf("collision name = %s, want %s", collision.Name, name)
		}
	})
}

func TestContentStore_List(t *testing.T) {
	store := newTestStore(t)

	staged, err := store.Stage(bytes.NewReader([]byte("listed")))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	name, err := store.Admit(staged, ".zip")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	// Leave something in staging; List must not report it.
	leftover, err := store.Stage(bytes.NewReader([]byte("leftover")))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer leftover.Remove()

	names, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("List() returned %d names, want 1", len(names))
	}
	if _, ok := names[name]; !ok {
		t.Errorf("List() missing %s", name)
	}
}

func TestContentStore_Verify(t *testing.T) {
	store := newTestStore(t)

	// Write a file directly under a name that does not match its content.
	wrongName := testutil.MD5Hex([]byte("other content")) + ".zip"
	if err := os.WriteFile(store.Path(wrongName), []byte("actual content"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	err := store.Verify(wrongName)
	var mismatch *archive.HashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Verify() error = %v, want *HashMismatchError", err)
	}
	if mismatch.Got != testutil.MD5Hex([]byte("actual content")) {
		t.Errorf("mismatch got = %s, want digest of actual content", mismatch.Got)
	}
}

func TestSplitName(t *testing.T) {
	digest, ext := archive.SplitName("0123456789abcdef0123456789abcdef.zip")
	if digest != "0123456789abcdef0123456789abcdef" || ext != ".zip" {
		t.Errorf("SplitName() = (%s, %s)", digest, ext)
	}
	if name := archive.CanonicalName(digest, ext); name != "0123456789abcdef0123456789abcdef.zip" {
		t.Errorf("CanonicalName() = %s", name)
	}
	if name := archive.CanonicalName(digest, "zip"); name != "0123456789abcdef0123456789abcdef.zip" {
		t.Errorf("CanonicalName() without dot = %s", name)
	}
}
