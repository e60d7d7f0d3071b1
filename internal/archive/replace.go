package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ReplaceFromFile swaps a document's archived content for a corrected file
// supplied by the operator. The local file's name (minus extension) is the
// document's external id; the file itself is admitted under its own digest
// and the catalog repointed at it. The previous file is removed only after
// the catalog agrees.
func (s *Service) ReplaceFromFile(localPath string) (*Document, error) {
	base := filepath.Base(localPath)
	externalID := strings.TrimSuffix(base, filepath.Ext(base))
	if externalID == "" {
		return nil, fmt.Errorf("cannot derive external id from %s", base)
	}

	doc, err := s.catalog.FindDocumentByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("no document linked to external id %s: %w", externalID, ErrNotFound)
	}

	digest, err := DigestFile(localPath)
	if err != nil {
		return nil, err
	}
	oldName := doc.FilePath
	oldStem, ext := SplitName(oldName)
	if digest == oldStem {
		s.logger.Info("replacement content identical to archived content", "document_id", doc.ID, "file", oldName)
		return doc, nil
	}

	newName, err := s.store.AdmitPath(localPath, digest, ext)
	var collision *CollisionError
	if errors.As(err, &collision) {
		// The replacement bytes are already archived under another document
		// or as a wandering file. Repointing here would silently merge two
		// documents; leave that to the operator.
		return nil, fmt.Errorf("replacement content already archived as %s", collision.Name)
	}
	if err != nil {
		return nil, err
	}

	if err := s.catalog.UpdateDocumentFilePath(doc.ID, newName); err != nil {
		if rbErr := s.store.RemoveFile(newName); rbErr != nil {
			s.logger.Error("rollback of replacement file failed", "file", newName, "error", rbErr)
		}
		return nil, err
	}
	if err := s.store.RemoveFile(oldName); err != nil {
		// The replacement is in effect; the stale file is now wandering and
		// a clean pass will find it.
		s.logger.Warn("stale file left behind after replacement", "file", oldName, "error", err)
	}

	s.logger.Info("document content replaced", "document_id", doc.ID, "old", oldName, "new", newName)
	doc.FilePath = newName
	return doc, nil
}
