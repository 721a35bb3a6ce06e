package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher retrieves a document's raw bytes from its storage location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// BlobFetcher resolves http(s) URLs over the network and anything else
// as a local file path.
type BlobFetcher struct {
	client *http.Client
}

func NewBlobFetcher() *BlobFetcher {
	return &BlobFetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (f *BlobFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("document has no storage location")
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return f.fetchURL(ctx, location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return data, nil
}

func (f *BlobFetcher) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	return data, nil
}
