package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// stagingDirName lives inside the archive root so that admitting a staged
// file is a same-filesystem rename, which is atomic with respect to crash.
const stagingDirName = ".staging"

// ContentStore owns the flat archive directory of content-addressed files
// and the parallel thumbnail directory. Every file it admits is named
// digest + extension; it never overwrites an existing canonical file.
type ContentStore struct {
	root      string
	staging   string
	thumbnail string
}

// NewContentStore creates a ContentStore rooted at root, creating the
// archive, staging, and thumbnail directories as needed.
func NewContentStore(root, thumbnailDir string) (*ContentStore, error) {
	staging := filepath.Join(root, stagingDirName)
	for _, dir := range []string{root, staging, thumbnailDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return &ContentStore{root: root, staging: staging, thumbnail: thumbnailDir}, nil
}

// Root returns the archive root directory.
func (s *ContentStore) Root() string { return s.root }

// CanonicalName returns the one correct archive filename for content with
// the given digest and original extension.
func CanonicalName(digest, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return digest + ext
}

// SplitName splits a canonical filename into digest stem and extension.
func SplitName(name string) (digest, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// Path returns the absolute path of an archived file.
func (s *ContentStore) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Exists reports whether a canonical filename is present in the archive.
func (s *ContentStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// List returns the set of archived filenames. The staging directory and
// other dot-entries are not part of the archive.
func (s *ContentStore) List() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

// StagedFile is content spooled into the staging directory with its digest
// already computed. It is private to the operation that created it until
// admitted; Remove is safe to call on every exit path, including after a
// successful Admit.
type StagedFile struct {
	Path   string
	Digest string
	Size   int64
}

// Remove deletes the staging artifact. A no-op once the file has been
// admitted (renamed away).
func (f *StagedFile) Remove() {
	if f.Path != "" {
		os.Remove(f.Path)
	}
}

// Stage spools r to a private staging file, computing the content digest as
// the bytes arrive. The caller must Remove the result when done with it.
func (s *ContentStore) Stage(r io.Reader) (*StagedFile, error) {
	tmp, err := os.CreateTemp(s.staging, "stage-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	tmpPath := tmp.Name()

	h := NewDigest()
	buf := make([]byte, digestBufSize)
	size, err := io.CopyBuffer(io.MultiWriter(tmp, h), r, buf)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("spooling content: %w", err)
	}

	return &StagedFile{
		Path:   tmpPath,
		Digest: fmt.Sprintf("%x", h.Sum(nil)),
		Size:   size,
	}, nil
}

// Admit moves a staged file into the archive under its canonical name.
// Returns *CollisionError without touching anything if content with this
// digest is already archived; two workers racing to admit identical content
// both end with the content in place, the loser seeing the collision.
func (s *ContentStore) Admit(staged *StagedFile, ext string) (string, error) {
	name := CanonicalName(staged.Digest, ext)
	if s.Exists(name) {
		return "", &CollisionError{Name: name}
	}
	if err := os.Rename(staged.Path, s.Path(name)); err != nil {
		return "", fmt.Errorf("admitting %s: %w", name, err)
	}
	staged.Path = ""
	return name, nil
}

// AdmitPath admits an existing local file (outside the staging area) under
// the canonical name for the given digest. Used by replace-by-source, where
// the content arrives as a plain file rather than a stream. When the file
// cannot be renamed into place, for example because it lives on another
// filesystem, it is copied through the staging area instead.
func (s *ContentStore) AdmitPath(localPath, digest, ext string) (string, error) {
	name := CanonicalName(digest, ext)
	if s.Exists(name) {
		return "", &CollisionError{Name: name}
	}
	if err := os.Rename(localPath, s.Path(name)); err == nil {
		return name, nil
	}
	return s.admitByCopy(localPath, digest, ext)
}

func (s *ContentStore) admitByCopy(localPath, digest, ext string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	staged, err := s.Stage(f)
	if err != nil {
		return "", err
	}
	defer staged.Remove()
	if staged.Digest != digest {
		return "", &HashMismatchError{Name: CanonicalName(digest, ext), Want: digest, Got: staged.Digest}
	}
	name, err := s.Admit(staged, ext)
	if err != nil {
		return "", err
	}
	// The rename path consumes the source file; match it.
	os.Remove(localPath)
	return name, nil
}

// Rename moves an archived file to a new canonical name. Used by the repair
// routine; the caller is responsible for keeping the catalog in agreement.
func (s *ContentStore) Rename(oldName, newName string) error {
	if err := os.Rename(s.Path(oldName), s.Path(newName)); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// RemoveFile deletes an archived file.
func (s *ContentStore) RemoveFile(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Digest re-digests an archived file by name.
func (s *ContentStore) Digest(name string) (string, error) {
	return DigestFile(s.Path(name))
}

// Verify re-digests an archived file and checks the digest against the
// filename stem. Returns *HashMismatchError when they disagree.
func (s *ContentStore) Verify(name string) error {
	sum, err := DigestFile(s.Path(name))
	if err != nil {
		return err
	}
	stem, _ := SplitName(name)
	if sum != stem {
		return &HashMismatchError{Name: name, Want: stem, Got: sum}
	}
	return nil
}

// ThumbnailPath returns the path of a document's thumbnail.
func (s *ContentStore) ThumbnailPath(docID int64) string {
	return filepath.Join(s.thumbnail, fmt.Sprintf("%d.webp", docID))
}
