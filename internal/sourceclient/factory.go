package sourceclient

import (
	"fmt"
	"time"

	"docarc/internal/archive"
	"docarc/internal/config"
)

// NewSourceClientFromConfig creates a SourceClient implementation based on
// the source config type. An empty type means no source is configured and
// nil is returned; ingestion and recovery then fail with a clear error.
func NewSourceClientFromConfig(cfg config.SourceConfig, timeout time.Duration) (archive.SourceClient, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http source requires base_url to be set")
		}
		return NewHTTPClient(cfg.BaseURL, timeout)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
