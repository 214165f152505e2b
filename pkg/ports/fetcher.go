package ports

import (
	"context"
	"fmt"
)

// Response is the part of a fetched response the engine needs.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// StatusError rejects a response by status code or content type.
type StatusError struct {
	Code        int
	URL         string
	ContentType string
}

func (e *StatusError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("fetch %s: unexpected content type %q (status %d)", e.URL, e.ContentType, e.Code)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Fetcher retrieves a URL. It rejects with *StatusError when the status is
// at or above rejectStatus, or when contentType is set and does not match.
type Fetcher interface {
	Fetch(ctx context.Context, url string, rejectStatus int, contentType string) (*Response, error)
}
