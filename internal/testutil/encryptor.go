package testutil

import "io"

// MarkerEncryptor prefixes the stream with a fixed marker instead of real
// encryption, so tests can assert that encryption ran.
type MarkerEncryptor struct{}

const EncryptionMarker = "ENCRYPTED\n"

func (MarkerEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.WriteString(w, EncryptionMarker); err != nil {
		return err
	}
	_, err := io.Copy(w, r)
	return err
}
