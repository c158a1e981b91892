// Package preview prepares cached page snapshots for review links.
//
// A snapshot is fetched, gzip-compressed and stored as an artifact ahead of
// the reviewer reaching that page. Preparation is asynchronous and
// deduplicated: at most one fetch is in flight per session+link at a time.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetched is the raw payload pulled for a link before compression.
type Fetched struct {
	Body        []byte
	ContentType string
}

// Fetcher retrieves a snapshot of a link.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (Fetched, error)
}

// HTTPFetcher downloads the page body directly over HTTP.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher with a request timeout and a hard cap on
// response size. Bodies past the cap are truncated, not failed, so one huge
// page cannot stall a whole preparation window.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link string) (Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Fetched{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "linkreview-preview/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return Fetched{}, fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Fetched{}, fmt.Errorf("fetch %s: status %d", link, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Fetched{}, fmt.Errorf("read body for %s: %w", link, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Fetched{Body: body, ContentType: contentType}, nil
}
