package encryption

import (
	"docarc/internal/archive"
	"docarc/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor for backup snapshots. Returns
// nil when no public key is configured; snapshots are then uploaded
// unencrypted.
func NewEncryptorFromConfig(cfg config.BackupConfig) archive.Encryptor {
	if cfg.PublicKeyPath == "" {
		return nil
	}
	return NewAgeEncryptor(cfg.PublicKeyPath)
}
