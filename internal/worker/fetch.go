// Package worker implements the job consumers: audio transcription, image
// description and LLM generation. Each worker is stateless; everything it
// needs arrives in the job envelope or through its injected dependencies.
package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxAttachmentBytes bounds how much attachment content a worker will pull
// into memory. Platform CDNs cap uploads well below this.
const maxAttachmentBytes = 100 << 20

// Fetcher downloads attachment content by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the default Fetcher over a shared http.Client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher. client may be nil for a default with a
// 60s timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("worker: fetch %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker: fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("worker: fetch %s: read body: %w", url, err)
	}
	if len(body) > maxAttachmentBytes {
		return nil, fmt.Errorf("worker: fetch %s: attachment exceeds %d bytes", url, maxAttachmentBytes)
	}
	return body, nil
}
