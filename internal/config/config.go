package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for docarc.
type Config struct {
	BaseDir      string `toml:"base_dir"`
	ArchiveDir   string `toml:"archive_dir"`
	ThumbnailDir string `toml:"thumbnail_dir"`
	LogDir       string `toml:"log_dir"`
	// Workers is the download worker pool size; 0 means the default.
	Workers int `toml:"workers"`
	// FetchTimeoutSeconds bounds a single content fetch; 0 means no limit.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`

	Database  DatabaseConfig  `toml:"database"`
	Source    SourceConfig    `toml:"source"`
	Backup    BackupConfig    `toml:"backup"`
	BlobStore BlobStoreConfig `toml:"blobstore"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SourceConfig represents configuration for the external content source.
type SourceConfig struct {
	Type string `toml:"type"` // "http" or "test"
	Name string `toml:"name"` // catalog source name for links

	// HTTP-specific fields (only used when Type == "http")
	BaseURL string `toml:"base_url,omitempty"`
}

// BlobStoreConfig represents configuration for the backup blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobStoreConfig struct {
	Type string `toml:"type"` // "s3", "filesystem", "memory", or "" (backup disabled)

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"` // custom endpoint for R2-style stores
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
	// MaxObjectSize is the backend's object size limit in bytes; larger
	// files are skipped during backup. 0 means no limit.
	MaxObjectSize int64 `toml:"max_object_size,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// BackupConfig holds backup encryption settings. When PublicKeyPath is set,
// catalog snapshots are age-encrypted before upload.
type BackupConfig struct {
	PublicKeyPath string `toml:"public_key_path,omitempty"`
}

// NewConfig creates a new Config with default paths under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:      baseDir,
		ArchiveDir:   filepath.Join(baseDir, "archive"),
		ThumbnailDir: filepath.Join(baseDir, "thumbnails"),
		LogDir:       filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Source: SourceConfig{
			Type: "http",
			Name: "default",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
