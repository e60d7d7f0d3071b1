package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// RepairAction records one file examined during a repair pass.
type RepairAction struct {
	OldName string
	NewName string
	Error   string
}

// RepairReport summarizes a FixMismatches pass.
type RepairReport struct {
	// Renamed files had a stem that disagreed with their content digest
	// and were renamed, with the catalog updated to match.
	Renamed []RepairAction
	// Collisions are mismatched files whose correct name is already taken
	// by another archived file. They are left untouched.
	Collisions []RepairAction
	// Orphans are mismatched files no catalog row references. They are
	// reported but never renamed; clean decides their fate.
	Orphans []RepairAction
	// Unchanged counts files whose stem matched their digest.
	Unchanged int
	Failures  []RepairAction
}

// FixMismatches scans every archived file, re-digests it, and repairs any
// file whose name disagrees with its content. A second pass over a
// repaired archive changes nothing.
func (s *Service) FixMismatches() (*RepairReport, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	report := &RepairReport{}
	for name := range names {
		digest, err := s.store.Digest(name)
		if err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: name, Error: err.Error()})
			continue
		}
		stem, ext := SplitName(name)
		if stem == digest {
			report.Unchanged++
			continue
		}

		correct := CanonicalName(digest, ext)
		s.logger.Warn("file name disagrees with content", "file", name, "digest", digest)

		if s.store.Exists(correct) {
			report.Collisions = append(report.Collisions, RepairAction{OldName: name, NewName: correct})
			continue
		}

		doc, err := s.catalog.FindDocumentByFilePath(name)
		if err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: name, Error: err.Error()})
			continue
		}
		if doc == nil {
			report.Orphans = append(report.Orphans, RepairAction{OldName: name, NewName: correct})
			continue
		}

		if err := s.store.Rename(name, correct); err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: name, NewName: correct, Error: err.Error()})
			continue
		}
		if err := s.catalog.UpdateDocumentFilePath(doc.ID, correct); err != nil {
			// Undo the rename so file and catalog stay consistent.
			if rbErr := s.store.Rename(correct, name); rbErr != nil {
				s.logger.Error("rollback rename failed", "file", correct, "error", rbErr)
			}
			report.Failures = append(report.Failures, RepairAction{OldName: name, NewName: correct, Error: err.Error()})
			continue
		}
		s.logger.Info("file repaired", "old", name, "new", correct, "document_id", doc.ID)
		report.Renamed = append(report.Renamed, RepairAction{OldName: name, NewName: correct})
	}
	return report, nil
}

// VerifyArchive re-digests every archived file and reports the ones whose
// name disagrees with their content. Nothing is modified.
func (s *Service) VerifyArchive() (mismatched []RepairAction, checked int, err error) {
	names, err := s.store.List()
	if err != nil {
		return nil, 0, fmt.Errorf("listing archive: %w", err)
	}
	for name := range names {
		checked++
		if verr := s.store.Verify(name); verr != nil {
			digest, _ := s.store.Digest(name)
			_, ext := SplitName(name)
			mismatched = append(mismatched, RepairAction{
				OldName: name,
				NewName: CanonicalName(digest, ext),
				Error:   verr.Error(),
			})
		}
	}
	return mismatched, checked, nil
}

// WanderingFiles returns archive files no catalog row references.
func (s *Service) WanderingFiles() ([]string, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	cataloged, err := s.catalogPathSet()
	if err != nil {
		return nil, err
	}
	var wandering []string
	for name := range names {
		if _, ok := cataloged[name]; !ok {
			wandering = append(wandering, name)
		}
	}
	sort.Strings(wandering)
	return wandering, nil
}

// MissingFiles returns catalog file paths with no file on disk.
func (s *Service) MissingFiles() ([]string, error) {
	paths, err := s.catalog.ListFilePaths()
	if err != nil {
		return nil, fmt.Errorf("listing catalog paths: %w", err)
	}
	var missing []string
	for _, p := range paths {
		if !s.store.Exists(p) {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// RemoveWandering deletes the named wandering files from the archive. The
// caller is expected to have confirmed the list; nothing here re-checks
// the catalog.
func (s *Service) RemoveWandering(names []string) error {
	for _, name := range names {
		if err := s.store.RemoveFile(name); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
		s.logger.Info("wandering file removed", "file", name)
	}
	return nil
}

func (s *Service) catalogPathSet() (map[string]struct{}, error) {
	paths, err := s.catalog.ListFilePaths()
	if err != nil {
		return nil, fmt.Errorf("listing catalog paths: %w", err)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		// Catalog rows store bare file names, but tolerate older rows
		// that carried a directory prefix.
		set[filepath.Base(strings.TrimSpace(p))] = struct{}{}
	}
	return set, nil
}
