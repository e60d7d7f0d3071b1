package archive_test

import (
	"bytes"
	"os"
	"testing"

	"docarc/internal/testutil"
)

func TestService_Thumbnail(t *testing.T) {
	t.Run("extracts the first page of the zip", func(t *testing.T) {
		env := newTestEnv(t)
		cover := []byte("webp bytes of the cover")
		zipData := testutil.ZipBytes(t, map[string][]byte{
			"001.webp": cover,
			"002.webp": []byte("second page"),
		}, "001.webp", "002.webp")

		name := testutil.MD5Hex(zipData) + ".zip"
		docID := seedFile(t, env, name, zipData, "Comic")

		path, err := env.service.Thumbnail(docID)
		if err != nil {
			t.Fatalf("Thumbnail() error = %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading thumbnail: %v", err)
		}
		if !bytes.Equal(got, cover) {
			t.Error("thumbnail is not the first zip entry")
		}
	})

	t.Run("picks the lexicographically first entry regardless of zip order", func(t *testing.T) {
		env := newTestEnv(t)
		cover := []byte("real cover")
		zipData := testutil.ZipBytes(t, map[string][]byte{
			"010.webp": []byte("later page"),
			"001.webp": cover,
		}, "010.webp", "001.webp")

		name := testutil.MD5Hex(zipData) + ".zip"
		docID := seedFile(t, env, name, zipData, "Comic")

		path, err := env.service.Thumbnail(docID)
		if err != nil {
			t.Fatalf("Thumbnail() error = %v", err)
		}
		got, _ := os.ReadFile(path)
		if !bytes.Equal(got, cover) {
			t.Error("thumbnail is not the first page by name")
		}
	})

	t.Run("an existing thumbnail is reused", func(t *testing.T) {
		env := newTestEnv(t)
		zipData := testutil.ZipBytes(t, map[string][]byte{"001.webp": []byte("cover")})
		docID := seedFile(t, env, testutil.MD5Hex(zipData)+".zip", zipData, "Comic")

		path, err := env.service.Thumbnail(docID)
		if err != nil {
			t.Fatalf("Thumbnail() error = %v", err)
		}
		// Overwrite the thumbnail; a second call must not regenerate it.
		if err := os.WriteFile(path, []byte("edited"), 0644); err != nil {
			t.Fatalf("overwriting thumbnail: %v", err)
		}
		if _, err := env.service.Thumbnail(docID); err != nil {
			t.Fatalf("second Thumbnail() error = %v", err)
		}
		got, _ := os.ReadFile(path)
		if !bytes.Equal(got, []byte("edited")) {
			t.Error("existing thumbnail was regenerated")
		}
	})
}

func TestService_CheckThumbnails(t *testing.T) {
	env := newTestEnv(t)

	zipA := testutil.ZipBytes(t, map[string][]byte{"a.webp": []byte("cover a")})
	idA := seedFile(t, env, testutil.MD5Hex(zipA)+".zip", zipA, "A")
	zipB := testutil.ZipBytes(t, map[string][]byte{"b.webp": []byte("cover b")})
	idB := seedFile(t, env, testutil.MD5Hex(zipB)+".zip", zipB, "B")

	// Pre-generate one of the two.
	if _, err := env.service.Thumbnail(idA); err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}

	report, err := env.service.CheckThumbnails()
	if err != nil {
		t.Fatalf("CheckThumbnails() error = %v", err)
	}
	if report.Present != 1 || report.Generated != 1 || len(report.Failures) != 0 {
		t.Errorf("report = %+v", report)
	}
	if _, err := os.Stat(env.store.ThumbnailPath(idB)); err != nil {
		t.Errorf("thumbnail for second document missing: %v", err)
	}
}
