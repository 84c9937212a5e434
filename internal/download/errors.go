package download

import (
	"fmt"
	"net/http"
)

// DownloadError reports a transport failure while fetching URL.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IntegrityError reports that fetched content did not match its declared checksum.
type IntegrityError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// StatusError is returned by the HTTP transport for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "unexpected HTTP status: " + e.Status
	}
	return fmt.Sprintf("unexpected HTTP status: %d", e.Code)
}

// NotFound reports whether the server said the resource does not exist.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound || e.Code == http.StatusGone
}
