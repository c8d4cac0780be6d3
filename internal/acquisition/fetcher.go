package acquisition

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/finboard-core/internal/fieldpath"
)

// Fetcher retrieves a JSON document from a REST endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fieldpath.Value, error)
}

// HTTPFetcher fetches documents with a plain GET.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTPFetcher creates a fetcher with the given request timeout and body limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

// Fetch issues GET url and parses the body. Non-2xx responses fail with
// "HTTP <code>: <status text>".
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (fieldpath.Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for keep-alive
		return nil, statusError(url, resp.StatusCode, statusText(resp))
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: url, Status: resp.StatusCode,
			Err: fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, f.maxBytes)}
	}

	doc, err := fieldpath.Parse(data)
	if err != nil {
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	return doc, nil
}

// statusText prefers the server's reason phrase over the standard one.
func statusText(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
