package database_test

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"docarc/internal/archive"
	"docarc/internal/database"
	"docarc/internal/testutil"
)

func TestSQLiteCatalog_Lookups(t *testing.T) {
	t.Run("missing entities return nil, nil", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)

		doc, err := c.FindDocumentByID(123)
		if err != nil || doc != nil {
			t.Errorf("FindDocumentByID() = (%v, %v), want (nil, nil)", doc, err)
		}
		doc, err = c.FindDocumentByFilePath("nope.zip")
		if err != nil || doc != nil {
			t.Errorf("FindDocumentByFilePath() = (%v, %v), want (nil, nil)", doc, err)
		}
		tag, err := c.FindTagByName("nope")
		if err != nil || tag != nil {
			t.Errorf("FindTagByName() = (%v, %v), want (nil, nil)", tag, err)
		}
		src, err := c.FindSourceByName("nope")
		if err != nil || src != nil {
			t.Errorf("FindSourceByName() = (%v, %v), want (nil, nil)", src, err)
		}
		group, err := c.FindTagGroupByName("nope")
		if err != nil || group != nil {
			t.Errorf("FindTagGroupByName() = (%v, %v), want (nil, nil)", group, err)
		}
	})

	t.Run("tag alias lookup matches alias or canonical name", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		tag := &archive.Tag{Name: "romantic comedy"}
		tag.SourceAlias = sql.NullString{String: "romcom", Valid: true}
		if _, err := c.InsertTag(tag); err != nil {
			t.Fatalf("InsertTag() error = %v", err)
		}

		byAlias, err := c.FindTagByAlias("romcom")
		if err != nil || byAlias == nil {
			t.Fatalf("FindTagByAlias(romcom) = (%v, %v)", byAlias, err)
		}
		byName, err := c.FindTagByAlias("romantic comedy")
		if err != nil || byName == nil || byName.ID != byAlias.ID {
			t.Errorf("FindTagByAlias(name) = (%v, %v)", byName, err)
		}
	})
}

func TestSQLiteCatalog_IngestDocument(t *testing.T) {
	t.Run("inserts document, authors, tags, and link atomically", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		sourceID, err := c.InsertSource("upstream", "https://example.net")
		if err != nil {
			t.Fatalf("InsertSource() error = %v", err)
		}
		tagID, err := c.InsertTag(&archive.Tag{Name: "drama"})
		if err != nil {
			t.Fatalf("InsertTag() error = %v", err)
		}

		docID, err := c.IngestDocument(
			&archive.Document{Title: "Doc", FilePath: "aa.zip"},
			[]string{"Alice", "Bob"}, []int64{tagID},
			&archive.SourceLink{SourceID: sourceID, ExternalID: "1001"})
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}

		authors, err := c.DocumentAuthors(docID)
		if err != nil || len(authors) != 2 {
			t.Errorf("DocumentAuthors() = (%v, %v), want 2", authors, err)
		}
		tags, err := c.DocumentTags(docID)
		if err != nil || len(tags) != 1 {
			t.Errorf("DocumentTags() = (%v, %v), want 1", tags, err)
		}
		link, err := c.SourceLinkFor(docID)
		if err != nil || link == nil || link.ExternalID != "1001" {
			t.Errorf("SourceLinkFor() = (%v, %v)", link, err)
		}
	})

	t.Run("authors are deduplicated by exact name", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		first, err := c.IngestDocument(
			&archive.Document{Title: "One", FilePath: "one.zip"}, []string{"Alice"}, nil, nil)
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}
		second, err := c.IngestDocument(
			&archive.Document{Title: "Two", FilePath: "two.zip"}, []string{"Alice"}, nil, nil)
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}

		a1, _ := c.DocumentAuthors(first)
		a2, _ := c.DocumentAuthors(second)
		if a1[0].ID != a2[0].ID {
			t.Errorf("author ids differ: %d vs %d", a1[0].ID, a2[0].ID)
		}
	})

	t.Run("duplicate source link rolls the transaction back", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		sourceID, _ := c.InsertSource("upstream", "")
		if _, err := c.IngestDocument(
			&archive.Document{Title: "One", FilePath: "one.zip"}, []string{"A"}, nil,
			&archive.SourceLink{SourceID: sourceID, ExternalID: "1001"}); err != nil {
			t.Fatalf("first IngestDocument() error = %v", err)
		}

		_, err := c.IngestDocument(
			&archive.Document{Title: "Two", FilePath: "two.zip"}, []string{"A"}, nil,
			&archive.SourceLink{SourceID: sourceID, ExternalID: "1001"})
		var integrity *archive.IntegrityError
		if !errors.As(err, &integrity) {
			t.Fatalf("error = %v, want *IntegrityError", err)
		}

		// No partial document row may survive.
		doc, err := c.FindDocumentByFilePath("two.zip")
		if err != nil || doc != nil {
			t.Errorf("FindDocumentByFilePath(two.zip) = (%v, %v), want (nil, nil)", doc, err)
		}
	})

	t.Run("explicit document id is preserved", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		docID, err := c.IngestDocument(
			&archive.Document{ID: 42, Title: "Doc", FilePath: "f.zip"}, []string{"A"}, nil, nil)
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}
		if docID != 42 {
			t.Errorf("document id = %d, want 42", docID)
		}
	})

	t.Run("series without volume is rejected before any writes", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		doc := &archive.Document{Title: "Doc", FilePath: "f.zip"}
		doc.SeriesName = sql.NullString{String: "Series", Valid: true}
		_, err := c.IngestDocument(doc, []string{"A"}, nil, nil)
		if !errors.Is(err, archive.ErrSeriesNeedsVolume) {
			t.Errorf("error = %v, want ErrSeriesNeedsVolume", err)
		}
	})
}

func TestSQLiteCatalog_Updates(t *testing.T) {
	t.Run("UpdateDocumentFilePath repoints an existing row", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		docID, err := c.IngestDocument(
			&archive.Document{Title: "Doc", FilePath: "old.zip"}, []string{"A"}, nil, nil)
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}
		if err := c.UpdateDocumentFilePath(docID, "new.zip"); err != nil {
			t.Fatalf("UpdateDocumentFilePath() error = %v", err)
		}
		doc, _ := c.FindDocumentByID(docID)
		if doc.FilePath != "new.zip" {
			t.Errorf("file path = %s", doc.FilePath)
		}
	})

	t.Run("UpdateDocumentFilePath on a missing row reports not found", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		err := c.UpdateDocumentFilePath(999, "x.zip")
		if !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("deleting a document cascades its joins", func(t *testing.T) {
		c := testutil.NewTestCatalog(t)
		sourceID, _ := c.InsertSource("upstream", "")
		docID, err := c.IngestDocument(
			&archive.Document{Title: "Doc", FilePath: "f.zip"}, []string{"A"}, nil,
			&archive.SourceLink{SourceID: sourceID, ExternalID: "1001"})
		if err != nil {
			t.Fatalf("IngestDocument() error = %v", err)
		}

		if err := c.DeleteDocument(docID); err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}
		link, err := c.SourceLinkFor(docID)
		if err != nil || link != nil {
			t.Errorf("SourceLinkFor() after delete = (%v, %v), want (nil, nil)", link, err)
		}
		doc, _ := c.FindDocumentBySource(sourceID, "1001")
		if doc != nil {
			t.Error("source link survived document deletion")
		}
	})
}

func TestSQLiteCatalog_BackupTo(t *testing.T) {
	c := testutil.NewTestCatalog(t)
	if _, err := c.IngestDocument(
		&archive.Document{Title: "Doc", FilePath: "f.zip"}, []string{"A"}, nil, nil); err != nil {
		t.Fatalf("IngestDocument() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := c.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	snap, err := database.NewSQLiteCatalog(dest)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snap.Close()

	doc, err := snap.FindDocumentByFilePath("f.zip")
	if err != nil || doc == nil {
		t.Errorf("snapshot lookup = (%v, %v), want document", doc, err)
	}
}
