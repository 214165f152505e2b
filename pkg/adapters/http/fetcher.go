package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/pkg/ports"
)

// DefaultMaxBody caps the bytes read from a single response.
const DefaultMaxBody = 8 << 20

// Fetcher implements ports.Fetcher on top of a net/http client.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient sets the underlying HTTP client.
func WithClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBody caps the response body size.
func WithMaxBody(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxBody = n
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher using http.DefaultClient unless configured.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  http.DefaultClient,
		maxBody: DefaultMaxBody,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ ports.Fetcher = (*Fetcher)(nil)

// Fetch issues a GET for url. The status and content type are checked
// before the body is read, so rejected responses are never downloaded.
func (f *Fetcher) Fetch(ctx context.Context, url string, rejectStatus int, contentType string) (*ports.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Accept", contentType)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	ct := resp.Header.Get("Content-Type")

	if rejectStatus > 0 && resp.StatusCode >= rejectStatus {
		return nil, &ports.StatusError{Code: resp.StatusCode, URL: final}
	}
	if contentType != "" && !matchType(ct, contentType) {
		return nil, &ports.StatusError{Code: resp.StatusCode, URL: final, ContentType: ct}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	f.logger.Debug("Fetched", "url", final, "status", resp.StatusCode, "bytes", len(body))

	return &ports.Response{
		URL:         final,
		Status:      resp.StatusCode,
		ContentType: ct,
		Body:        body,
	}, nil
}

func matchType(header, want string) bool {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return strings.EqualFold(mt, want)
}
