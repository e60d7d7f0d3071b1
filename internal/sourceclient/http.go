package sourceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docarc/internal/archive"
)

// HTTPClient fetches item metadata and content from an HTTP source exposing
//
//	GET {base}/items/{id}          -> metadata JSON
//	GET {base}/items/{id}/content  -> raw content bytes
type HTTPClient struct {
	base   string
	client *http.Client
}

// metadataDoc is the source's metadata wire format.
type metadataDoc struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Tags    []string `json:"tags"`
}

// NewHTTPClient creates an HTTP source client. timeout bounds a whole
// request including the body read; 0 means no limit.
func NewHTTPClient(base string, timeout time.Duration) (*HTTPClient, error) {
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid source base url %q", base)
	}
	return &HTTPClient{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) FetchMetadata(ctx context.Context, externalID string) (*archive.SourceMetadata, error) {
	u := fmt.Sprintf("%s/items/%s", c.base, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request for %s returned %s", externalID, resp.Status)
	}

	var doc metadataDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", externalID, err)
	}
	if doc.Title == "" {
		doc.Title = externalID
	}
	return &archive.SourceMetadata{
		Title:   doc.Title,
		Authors: doc.Authors,
		Tags:    doc.Tags,
	}, nil
}

func (c *HTTPClient) FetchContent(ctx context.Context, externalID string) (io.ReadCloser, int64, error) {
	u := fmt.Sprintf("%s/items/%s/content", c.base, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building content request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("content request for %s returned %s", externalID, resp.Status)
	}
	// ContentLength is -1 when the source does not report a size, which
	// matches the interface contract.
	return resp.Body, resp.ContentLength, nil
}
