package archive

import (
	"context"
	"fmt"
)

// RecoveryReport summarizes a RecoverMissing pass.
type RecoveryReport struct {
	Recovered []string
	// Unlinked documents have a missing file and no source link, so there
	// is nowhere to fetch them from.
	Unlinked []string
	Failures []RepairAction
}

// RecoverMissing re-downloads every cataloged file absent from disk, using
// each document's source link. A re-downloaded file must digest to the
// recorded filename stem; content drift on the source side is reported,
// never silently admitted under the old name.
func (s *Service) RecoverMissing(ctx context.Context) (*RecoveryReport, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no source client configured")
	}
	missing, err := s.MissingFiles()
	if err != nil {
		return nil, err
	}

	report := &RecoveryReport{}
	for _, name := range missing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.recoverOne(ctx, name, report); err != nil {
			report.Failures = append(report.Failures, RepairAction{OldName: name, Error: err.Error()})
		}
	}
	return report, nil
}

func (s *Service) recoverOne(ctx context.Context, name string, report *RecoveryReport) error {
	doc, err := s.catalog.FindDocumentByFilePath(name)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("catalog row for %s vanished mid-pass: %w", name, ErrNotFound)
	}
	link, err := s.catalog.SourceLinkFor(doc.ID)
	if err != nil {
		return err
	}
	if link == nil {
		s.logger.Warn("missing file has no source link", "file", name, "document_id", doc.ID)
		report.Unlinked = append(report.Unlinked, name)
		return nil
	}

	rc, _, err := s.source.FetchContent(ctx, link.ExternalID)
	if err != nil {
		return &FetchError{ExternalID: link.ExternalID, Err: err}
	}
	defer rc.Close()

	staged, err := s.store.Stage(&contextReader{ctx: ctx, r: rc})
	if err != nil {
		return &FetchError{ExternalID: link.ExternalID, Err: err}
	}
	defer staged.Remove()

	stem, ext := SplitName(name)
	if staged.Digest != stem {
		return &HashMismatchError{Name: name, Want: stem, Got: staged.Digest}
	}
	if _, err := s.store.Admit(staged, ext); err != nil {
		return err
	}
	s.logger.Info("missing file recovered", "file", name, "external_id", link.ExternalID)
	report.Recovered = append(report.Recovered, name)
	return nil
}

// ImportReport summarizes an ImportRemote pass.
type ImportReport struct {
	Imported int
	Skipped  int
	Failures []RepairAction
}

// ImportRemote replays every document from a remote catalog into the local
// one, preserving document ids so the two catalogs stay directly
// comparable. Documents already present locally are skipped; conflicting
// rows are logged and the pass continues.
func (s *Service) ImportRemote(ctx context.Context, remote Catalog) (*ImportReport, error) {
	ids, err := remote.ListDocumentIDs()
	if err != nil {
		return nil, fmt.Errorf("listing remote documents: %w", err)
	}

	report := &ImportReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		local, err := s.catalog.FindDocumentByID(id)
		if err != nil {
			return report, err
		}
		if local != nil {
			report.Skipped++
			continue
		}
		if err := s.importOne(remote, id); err != nil {
			s.logger.Error("remote document import failed", "document_id", id, "error", err)
			report.Failures = append(report.Failures, RepairAction{OldName: fmt.Sprintf("%d", id), Error: err.Error()})
			continue
		}
		report.Imported++
	}
	return report, nil
}

func (s *Service) importOne(remote Catalog, id int64) error {
	doc, err := remote.FindDocumentByID(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("remote document %d: %w", id, ErrNotFound)
	}

	remoteAuthors, err := remote.DocumentAuthors(id)
	if err != nil {
		return err
	}
	authors := make([]string, 0, len(remoteAuthors))
	for _, a := range remoteAuthors {
		authors = append(authors, a.Name)
	}

	remoteTags, err := remote.DocumentTags(id)
	if err != nil {
		return err
	}
	tagIDs, err := s.importTags(remote, remoteTags)
	if err != nil {
		return err
	}

	link, err := remote.SourceLinkFor(id)
	if err != nil {
		return err
	}
	if link != nil {
		if err := s.importSource(remote, link); err != nil {
			return err
		}
	}

	imported := &Document{
		ID:           doc.ID,
		Title:        doc.Title,
		FilePath:     doc.FilePath,
		SeriesName:   doc.SeriesName,
		VolumeNumber: doc.VolumeNumber,
	}
	if _, err := s.catalog.IngestDocument(imported, authors, tagIDs, link); err != nil {
		return err
	}
	s.logger.Info("remote document imported", "document_id", doc.ID, "file", doc.FilePath)
	return nil
}

// importTags resolves remote tags to local tag ids by name, creating tags
// and their groups where the local catalog lacks them.
func (s *Service) importTags(remote Catalog, remoteTags []Tag) ([]int64, error) {
	tagIDs := make([]int64, 0, len(remoteTags))
	for _, rt := range remoteTags {
		local, err := s.catalog.FindTagByName(rt.Name)
		if err != nil {
			return nil, err
		}
		if local != nil {
			tagIDs = append(tagIDs, local.ID)
			continue
		}

		tag := &Tag{Name: rt.Name, SourceAlias: rt.SourceAlias}
		if rt.GroupID.Valid {
			groupID, err := s.importGroup(remote, rt.GroupID.Int64)
			if err != nil {
				return nil, err
			}
			tag.GroupID.Int64, tag.GroupID.Valid = groupID, true
		}
		id, err := s.catalog.InsertTag(tag)
		if err != nil {
			return nil, err
		}
		tagIDs = append(tagIDs, id)
	}
	return tagIDs, nil
}

func (s *Service) importGroup(remote Catalog, remoteGroupID int64) (int64, error) {
	groups, err := remote.ListTagGroups()
	if err != nil {
		return 0, err
	}
	var name string
	for _, g := range groups {
		if g.ID == remoteGroupID {
			name = g.Name
			break
		}
	}
	if name == "" {
		return 0, fmt.Errorf("remote tag group %d: %w", remoteGroupID, ErrNotFound)
	}
	local, err := s.catalog.FindTagGroupByName(name)
	if err != nil {
		return 0, err
	}
	if local != nil {
		return local.ID, nil
	}
	return s.catalog.InsertTagGroup(name)
}

// importSource ensures the local catalog has a source row for the remote
// link's source, rewriting link.SourceID to the local id.
func (s *Service) importSource(remote Catalog, link *SourceLink) error {
	remoteSources, err := remote.ListSources()
	if err != nil {
		return err
	}
	var src *Source
	for i := range remoteSources {
		if remoteSources[i].ID == link.SourceID {
			src = &remoteSources[i]
			break
		}
	}
	if src == nil {
		return fmt.Errorf("remote source %d: %w", link.SourceID, ErrNotFound)
	}
	local, err := s.catalog.FindSourceByName(src.Name)
	if err != nil {
		return err
	}
	if local != nil {
		link.SourceID = local.ID
		return nil
	}
	id, err := s.catalog.InsertSource(src.Name, src.BaseURL.String)
	if err != nil {
		return err
	}
	link.SourceID = id
	return nil
}
