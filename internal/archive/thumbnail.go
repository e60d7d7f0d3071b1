package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Thumbnail returns the path of the document's thumbnail, generating it
// from the first page of the archived zip if it does not exist yet.
func (s *Service) Thumbnail(docID int64) (string, error) {
	path := s.store.ThumbnailPath(docID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	doc, err := s.catalog.FindDocumentByID(docID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	if err := s.generateThumbnail(doc, path); err != nil {
		return "", err
	}
	return path, nil
}

// generateThumbnail extracts the first entry of the document's zip, which
// by source convention is the cover page, and writes it next to the other
// thumbnails. The write goes through a temp file and rename so a crashed
// extraction never leaves a truncated thumbnail behind.
func (s *Service) generateThumbnail(doc *Document, dest string) error {
	zr, err := zip.OpenReader(s.store.Path(doc.FilePath))
	if err != nil {
		return fmt.Errorf("opening %s: %w", doc.FilePath, err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return fmt.Errorf("%s has no entries: %w", doc.FilePath, ErrNotFound)
	}
	sort.Strings(names)

	var first *zip.File
	for _, f := range zr.File {
		if f.Name == names[0] {
			first = f
			break
		}
	}

	rc, err := first.Open()
	if err != nil {
		return fmt.Errorf("opening first page of %s: %w", doc.FilePath, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".thumb-*")
	if err != nil {
		return fmt.Errorf("creating thumbnail temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, err = io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("extracting thumbnail for document %d: %w", doc.ID, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("placing thumbnail for document %d: %w", doc.ID, err)
	}
	s.logger.Debug("thumbnail generated", "document_id", doc.ID, "path", dest)
	return nil
}

// ThumbnailReport summarizes a CheckThumbnails pass.
type ThumbnailReport struct {
	Generated int
	Present   int
	Failures  []RepairAction
}

// CheckThumbnails generates a thumbnail for every cataloged document that
// lacks one.
func (s *Service) CheckThumbnails() (*ThumbnailReport, error) {
	ids, err := s.catalog.ListDocumentIDs()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	report := &ThumbnailReport{}
	for _, id := range ids {
		path := s.store.ThumbnailPath(id)
		if _, err := os.Stat(path); err == nil {
			report.Present++
			continue
		}
		if _, err := s.Thumbnail(id); err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: fmt.Sprintf("%d", id), Error: err.Error()})
			continue
		}
		report.Generated++
	}
	return report, nil
}
