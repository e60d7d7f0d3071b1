package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultExt is the extension given to ingested content. Sources in the
// observed deployments all deliver zip-packed documents.
const DefaultExt = ".zip"

// TagMapping tells the pipeline how to create a tag for a source alias the
// catalog does not know yet.
type TagMapping struct {
	GroupID int64
	Name    string
}

// IngestRequest describes one external item to ingest.
type IngestRequest struct {
	SourceID   int64
	ExternalID string
	// Ext is the content file extension; DefaultExt when empty.
	Ext string
	// TagMappings supplies (group, canonical name) pairs for source tag
	// aliases not yet in the catalog. An unknown alias with no mapping
	// fails the pipeline; taxonomy is never invented silently.
	TagMappings map[string]TagMapping
	// Progress, if set, receives download progress in [0,100]. It must not
	// block; it is called from the fetch path.
	Progress func(percent float64)
}

// IngestResult reports what Ingest did.
type IngestResult struct {
	DocumentID int64
	// AlreadyKnown means the (source, external id) pair was already linked
	// and the pipeline was a no-op.
	AlreadyKnown bool
	// Deduplicated means the fetched content was byte-identical to an
	// already-archived document, which gained a new source link instead of
	// a second document row.
	Deduplicated bool
	FileName     string
}

// Ingest turns one external item into one archived, cataloged document.
// It is idempotent per (source, external id), deduplicates by content
// digest, and on any failure leaves no staging artifact and no partial
// catalog rows.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no source client configured")
	}
	ext := req.Ext
	if ext == "" {
		ext = DefaultExt
	}

	// Re-running ingestion for a known item must never create a duplicate.
	existing, err := s.catalog.FindDocumentBySource(req.SourceID, req.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("checking source link: %w", err)
	}
	if existing != nil {
		s.logger.Debug("item already cataloged", "external_id", req.ExternalID, "document_id", existing.ID)
		return &IngestResult{DocumentID: existing.ID, AlreadyKnown: true, FileName: existing.FilePath}, nil
	}

	meta, err := s.source.FetchMetadata(ctx, req.ExternalID)
	if err != nil {
		return nil, &FetchError{ExternalID: req.ExternalID, Err: err}
	}

	tagIDs, err := s.resolveTags(meta.Tags, req.TagMappings)
	if err != nil {
		return nil, err
	}

	staged, err := s.fetchAndStage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer staged.Remove()

	authors := meta.Authors
	if len(authors) == 0 {
		authors = []string{"Unknown"}
	}

	name, err := s.store.Admit(staged, ext)
	var collision *CollisionError
	if errors.As(err, &collision) {
		return s.resolveCollision(collision.Name, req, meta, authors, tagIDs)
	}
	if err != nil {
		return nil, err
	}

	doc := &Document{Title: meta.Title, FilePath: name}
	link := &SourceLink{SourceID: req.SourceID, ExternalID: req.ExternalID}
	docID, err := s.catalog.IngestDocument(doc, authors, tagIDs, link)
	if err != nil {
		// A racing worker ingesting identical content may have committed
		// its own row between the admit and this insert.
		if res, ok := s.linkAfterRace(name, req, err); ok {
			return res, nil
		}
		// No catalog row references the file; without rollback it would
		// be a wandering file.
		if ref, lookErr := s.catalog.FindDocumentByFilePath(name); lookErr == nil && ref == nil {
			if rmErr := s.store.RemoveFile(name); rmErr != nil {
				s.logger.Error("rollback of admitted file failed", "file", name, "error", rmErr)
			}
		}
		return nil, err
	}

	if req.Progress != nil {
		req.Progress(100)
	}
	s.logger.Info("item ingested", "external_id", req.ExternalID, "document_id", docID, "file", name)
	return &IngestResult{DocumentID: docID, FileName: name}, nil
}

// resolveTags maps source tag aliases to catalog tag ids, creating tags
// from caller-supplied mappings where needed.
func (s *Service) resolveTags(aliases []string, mappings map[string]TagMapping) ([]int64, error) {
	tagIDs := make([]int64, 0, len(aliases))
	for _, alias := range aliases {
		tag, err := s.catalog.FindTagByAlias(alias)
		if err != nil {
			return nil, fmt.Errorf("looking up tag alias %q: %w", alias, err)
		}
		if tag != nil {
			tagIDs = append(tagIDs, tag.ID)
			continue
		}
		mapping, ok := mappings[alias]
		if !ok {
			return nil, &MissingTagMappingError{Alias: alias}
		}
		if mapping.GroupID <= 0 {
			return nil, &MissingGroupMappingError{Alias: alias}
		}
		newTag := &Tag{Name: mapping.Name}
		newTag.GroupID.Int64, newTag.GroupID.Valid = mapping.GroupID, true
		newTag.SourceAlias.String, newTag.SourceAlias.Valid = alias, true
		id, err := s.catalog.InsertTag(newTag)
		if err != nil {
			return nil, fmt.Errorf("creating tag for alias %q: %w", alias, err)
		}
		s.logger.Info("tag created from mapping", "alias", alias, "name", mapping.Name, "id", id)
		tagIDs = append(tagIDs, id)
	}
	return tagIDs, nil
}

// fetchAndStage streams the item's content into the staging area, hashing
// as it goes and reporting progress. Every failure path removes the
// staging artifact.
func (s *Service) fetchAndStage(ctx context.Context, req IngestRequest) (*StagedFile, error) {
	rc, size, err := s.source.FetchContent(ctx, req.ExternalID)
	if err != nil {
		return nil, &FetchError{ExternalID: req.ExternalID, Err: err}
	}
	defer rc.Close()

	r := io.Reader(&contextReader{ctx: ctx, r: rc})
	if req.Progress != nil && size > 0 {
		r = &progressReader{r: r, total: size, report: req.Progress}
	}

	staged, err := s.store.Stage(r)
	if err != nil {
		return nil, &FetchError{ExternalID: req.ExternalID, Err: err}
	}
	if staged.Size == 0 {
		staged.Remove()
		return nil, &FetchError{ExternalID: req.ExternalID, Err: fmt.Errorf("source returned no content")}
	}
	return staged, nil
}

// resolveCollision handles a digest collision during admit: the exact bytes
// are already archived. Content identity implies document identity, so the
// existing document gains this source link instead of a second row being
// created. When no document references the file (a wandering file), a new
// document adopts it.
func (s *Service) resolveCollision(name string, req IngestRequest, meta *SourceMetadata, authors []string, tagIDs []int64) (*IngestResult, error) {
	doc, err := s.catalog.FindDocumentByFilePath(name)
	if err != nil {
		return nil, fmt.Errorf("looking up colliding file %s: %w", name, err)
	}
	if doc == nil {
		// Wandering file: bytes on disk, no catalog row. Adopt it instead
		// of failing; the content is exactly what we just fetched.
		adopted := &Document{Title: meta.Title, FilePath: name}
		link := &SourceLink{SourceID: req.SourceID, ExternalID: req.ExternalID}
		docID, err := s.catalog.IngestDocument(adopted, authors, tagIDs, link)
		if err != nil {
			// A racing worker can catalog the same content between the
			// lookup above and this insert. The file predates this
			// operation, so it is never removed here.
			if res, ok := s.linkAfterRace(name, req, err); ok {
				return res, nil
			}
			return nil, fmt.Errorf("adopting wandering file %s: %w", name, err)
		}
		if req.Progress != nil {
			req.Progress(100)
		}
		s.logger.Info("wandering file adopted", "external_id", req.ExternalID, "document_id", docID, "file", name)
		return &IngestResult{DocumentID: docID, Deduplicated: true, FileName: name}, nil
	}
	if err := s.catalog.LinkSource(doc.ID, req.SourceID, req.ExternalID); err != nil {
		return nil, fmt.Errorf("linking existing document %d to source: %w", doc.ID, err)
	}
	if req.Progress != nil {
		req.Progress(100)
	}
	s.logger.Info("content deduplicated", "external_id", req.ExternalID, "document_id", doc.ID, "file", name)
	return &IngestResult{DocumentID: doc.ID, Deduplicated: true, FileName: name}, nil
}

// linkAfterRace re-resolves a catalog integrity failure that followed a
// successful admit. When a racing worker committed identical content first,
// the item is archived and cataloged already; the loser of the race links
// the existing document and reports success.
func (s *Service) linkAfterRace(name string, req IngestRequest, cause error) (*IngestResult, bool) {
	var integrity *IntegrityError
	if !errors.As(cause, &integrity) {
		return nil, false
	}

	existing, err := s.catalog.FindDocumentBySource(req.SourceID, req.ExternalID)
	if err == nil && existing != nil {
		s.logger.Info("item cataloged by racing worker", "external_id", req.ExternalID, "document_id", existing.ID)
		return &IngestResult{DocumentID: existing.ID, AlreadyKnown: true, FileName: existing.FilePath}, true
	}

	doc, err := s.catalog.FindDocumentByFilePath(name)
	if err != nil || doc == nil {
		return nil, false
	}
	if err := s.catalog.LinkSource(doc.ID, req.SourceID, req.ExternalID); err != nil {
		return nil, false
	}
	if req.Progress != nil {
		req.Progress(100)
	}
	s.logger.Info("content deduplicated", "external_id", req.ExternalID, "document_id", doc.ID, "file", name)
	return &IngestResult{DocumentID: doc.ID, Deduplicated: true, FileName: name}, true
}

// contextReader fails reads once ctx is done, so an in-flight fetch stops
// promptly on cancellation even when the underlying body would block.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// progressReader reports cumulative progress as a percentage of total.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		pct := float64(p.read) / float64(p.total) * 100
		if pct > 100 {
			pct = 100
		}
		p.report(pct)
	}
	return n, err
}
