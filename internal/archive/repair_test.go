package archive_test

import (
	"errors"
	"os"
	"testing"

	"docarc/internal/archive"
	"docarc/internal/testutil"
)

// updateFailCatalog rejects every document file path update.
type updateFailCatalog struct {
	archive.Catalog
	err error
}

func (c *updateFailCatalog) UpdateDocumentFilePath(int64, string) error { return c.err }

// seedFile writes content into the archive under the given name, bypassing
// the staging path, and optionally catalogs it.
func seedFile(t *testing.T, env *testEnv, name string, content []byte, catalogTitle string) int64 {
	t.Helper()
	if err := os.WriteFile(env.store.Path(name), content, 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	if catalogTitle == "" {
		return 0
	}
	id, err := env.catalog.IngestDocument(
		&archive.Document{Title: catalogTitle, FilePath: name}, []string{"A"}, nil, nil)
	if err != nil {
		t.Fatalf("cataloging %s: %v", name, err)
	}
	return id
}

func TestService_FixMismatches(t *testing.T) {
	t.Run("renames a mismatched file and updates the catalog", func(t *testing.T) {
		env := newTestEnv(t)
		content := []byte("misfiled content")
		wrongName := testutil.MD5Hex([]byte("something else")) + ".zip"
		docID := seedFile(t, env, wrongName, content, "Misfiled")

		report, err := env.service.FixMismatches()
		if err != nil {
			t.Fatalf("FixMismatches() error = %v", err)
		}
		if len(report.Renamed) != 1 {
			t.Fatalf("renamed = %d, want 1", len(report.Renamed))
		}

		correct := testutil.MD5Hex(content) + ".zip"
		if report.Renamed[0].NewName != correct {
			t.Errorf("new name = %s, want %s", report.Renamed[0].NewName, correct)
		}
		if env.store.Exists(wrongName) {
			t.Error("old file still present")
		}
		if !env.store.Exists(correct) {
			t.Error("renamed file missing")
		}

		doc, err := env.catalog.FindDocumentByID(docID)
		if err != nil || doc == nil || doc.FilePath != correct {
			t.Errorf("catalog path = %v, want %s", doc, correct)
		}
	})

	t.Run("a second pass changes nothing", func(t *testing.T) {
		env := newTestEnv(t)
		content := []byte("will be repaired")
		seedFile(t, env, testutil.MD5Hex([]byte("wrong"))+".zip", content, "Doc")

		if _, err := env.service.FixMismatches(); err != nil {
			t.Fatalf("first FixMismatches() error = %v", err)
		}
		report, err := env.service.FixMismatches()
		if err != nil {
			t.Fatalf("second FixMismatches() error = %v", err)
		}
		if len(report.Renamed) != 0 || len(report.Failures) != 0 {
			t.Errorf("second pass report = %+v, want all unchanged", report)
		}
		if report.Unchanged != 1 {
			t.Errorf("unchanged = %d, want 1", report.Unchanged)
		}
	})

	t.Run("correctly named files are untouched", func(t *testing.T) {
		env := newTestEnv(t)
		content := []byte("already correct")
		seedFile(t, env, testutil.MD5Hex(content)+".zip", content, "Correct")

		report, err := env.service.FixMismatches()
		if err != nil {
			t.Fatalf("FixMismatches() error = %v", err)
		}
		if report.Unchanged != 1 || len(report.Renamed) != 0 {
			t.Errorf("report = %+v", report)
		}
	})

	t.Run("a failed catalog update rolls the rename back", func(t *testing.T) {
		env := newTestEnv(t)
		content := []byte("stuck content")
		wrongName := testutil.MD5Hex([]byte("stale digest")) + ".zip"
		docID := seedFile(t, env, wrongName, content, "Stuck")

		failing := &updateFailCatalog{Catalog: env.catalog, err: errors.New("disk I/O error")}
		svc := archive.NewService(failing, env.store, nil, nil, nil, nil, nil)

		report, err := svc.FixMismatches()
		if err != nil {
			t.Fatalf("FixMismatches() error = %v", err)
		}
		if len(report.Failures) != 1 || len(report.Renamed) != 0 {
			t.Fatalf("report = %+v, want one failure", report)
		}

		// File and catalog must still agree on the old name.
		correct := testutil.MD5Hex(content) + ".zip"
		if !env.store.Exists(wrongName) {
			t.Error("file not renamed back after catalog failure")
		}
		if env.store.Exists(correct) {
			t.Error("file left under the new name after catalog failure")
		}
		doc, lookErr := env.catalog.FindDocumentByID(docID)
		if lookErr != nil || doc == nil || doc.FilePath != wrongName {
			t.Errorf("catalog path = %v, want %s", doc, wrongName)
		}
	})

	t.Run("mismatched orphans are reported but never renamed", func(t *testing.T) {
		env := newTestEnv(t)
		wrongName := testutil.MD5Hex([]byte("x")) + ".zip"
		seedFile(t, env, wrongName, []byte("orphan content"), "")

		report, err := env.service.FixMismatches()
		if err != nil {
			t.Fatalf("FixMismatches() error = %v", err)
		}
		if len(report.Orphans) != 1 || report.Orphans[0].OldName != wrongName {
			t.Fatalf("orphans = %+v", report.Orphans)
		}
		if !env.store.Exists(wrongName) {
			t.Error("orphan was renamed or removed")
		}
	})

	t.Run("collision with an existing file is reported and left alone", func(t *testing.T) {
		env := newTestEnv(t)
		content := []byte("duplicate content")
		correct := testutil.MD5Hex(content) + ".zip"
		seedFile(t, env, correct, content, "Original")

		wrongName := testutil.MD5Hex([]byte("y")) + ".zip"
		seedFile(t, env, wrongName, content, "Duplicate")

		report, err := env.service.FixMismatches()
		if err != nil {
			t.Fatalf("FixMismatches() error = %v", err)
		}
		if len(report.Collisions) != 1 || report.Collisions[0].OldName != wrongName {
			t.Fatalf("collisions = %+v", report.Collisions)
		}
		if !env.store.Exists(wrongName) || !env.store.Exists(correct) {
			t.Error("collision pass modified files")
		}
	})
}

func TestService_WanderingAndMissing(t *testing.T) {
	env := newTestEnv(t)

	catalogedContent := []byte("cataloged")
	catalogedName := testutil.MD5Hex(catalogedContent) + ".zip"
	seedFile(t, env, catalogedName, catalogedContent, "Cataloged")

	wanderingName := testutil.MD5Hex([]byte("wandering")) + ".zip"
	seedFile(t, env, wanderingName, []byte("wandering"), "")

	missingName := testutil.MD5Hex([]byte("missing")) + ".zip"
	if _, err := env.catalog.IngestDocument(
		&archive.Document{Title: "Missing", FilePath: missingName}, []string{"A"}, nil, nil); err != nil {
		t.Fatalf("cataloging missing doc: %v", err)
	}

	wandering, err := env.service.WanderingFiles()
	if err != nil {
		t.Fatalf("WanderingFiles() error = %v", err)
	}
	if len(wandering) != 1 || wandering[0] != wanderingName {
		t.Errorf("wandering = %v, want [%s]", wandering, wanderingName)
	}

	missing, err := env.service.MissingFiles()
	if err != nil {
		t.Fatalf("MissingFiles() error = %v", err)
	}
	if len(missing) != 1 || missing[0] != missingName {
		t.Errorf("missing = %v, want [%s]", missing, missingName)
	}

	if err := env.service.RemoveWandering(wandering); err != nil {
		t.Fatalf("RemoveWandering() error = %v", err)
	}
	if env.store.Exists(wanderingName) {
		t.Error("wandering file still present after removal")
	}
	if !env.store.Exists(catalogedName) {
		t.Error("cataloged file removed")
	}
}

func TestService_VerifyArchive(t *testing.T) {
	env := newTestEnv(t)
	good := []byte("good content")
	seedFile(t, env, testutil.MD5Hex(good)+".zip", good, "Good")
	badName := testutil.MD5Hex([]byte("other")) + ".zip"
	seedFile(t, env, badName, []byte("bad content"), "Bad")

	mismatched, checked, err := env.service.VerifyArchive()
	if err != nil {
		t.Fatalf("VerifyArchive() error = %v", err)
	}
	if checked != 2 {
		t.Errorf("checked = %d, want 2", checked)
	}
	if len(mismatched) != 1 || mismatched[0].OldName != badName {
		t.Errorf("mismatched = %+v", mismatched)
	}
	// Verification never modifies the archive.
	if !env.store.Exists(badName) {
		t.Error("verify modified the archive")
	}
}
