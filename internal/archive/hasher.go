package archive

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// digestBufSize is the chunk size for streaming digests. Purely a throughput
// knob; the digest is identical for any chunking.
const digestBufSize = 64 * 1024

// NewDigest returns the hash used for content addressing. The archive's
// canonical filenames are MD5 hex digests, so this stays MD5 for
// compatibility with existing archives.
func NewDigest() hash.Hash { return md5.New() }

// Digest reads r to EOF and returns the lowercase hex content digest and the
// number of bytes read. Memory use is constant in the input size.
func Digest(r io.Reader) (string, int64, error) {
	h := NewDigest()
	buf := make([]byte, digestBufSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, fmt.Errorf("reading content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestFile returns the content digest of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sum, _, err := Digest(f)
	return sum, err
}
