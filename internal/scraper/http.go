package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobmate/discovery-service/internal/model"
)

const (
	httpTimeout  = 15 * time.Second
	maxBodyBytes = 8 << 20
	userAgent    = "jobmate-discovery/1.0"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// get performs one GET and returns the body of a 200 response. Every error
// is a classified *FetchError.
func get(ctx context.Context, client *http.Client, src model.Source, reqURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, permanent(src, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transient(src, 0, fmt.Errorf("http GET: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transient(src, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(src, resp.StatusCode, body)
	}
	return body, nil
}
