// Package resolve turns proxy requests into concrete media origins: a file
// under the event media tree, a caller-supplied remote URL, or an external
// URI looked up through the upstream storage API.
package resolve

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNotFound covers absent manifests, media entries, files and objects.
	ErrNotFound = errors.New("not found")
	// ErrInvalidReference marks a reference that cannot identify an origin.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrAccessDenied marks an upstream object that is not public.
	ErrAccessDenied = errors.New("access denied")
)

var (
	ErrEventNotFound    = fmt.Errorf("event %w", ErrNotFound)
	ErrNoMedia          = fmt.Errorf("no media %w", ErrNotFound)
	ErrMediaFileMissing = fmt.Errorf("media file %w", ErrNotFound)
	ErrObjectNotFound   = fmt.Errorf("object %w", ErrNotFound)
)

// UpstreamError is a metadata lookup failure that is neither "absent" nor
// "denied": transport errors and unexpected statuses from the storage API.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidateURL checks that rawURL is a well-formed absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidReference
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidReference
	}
	return nil
}
