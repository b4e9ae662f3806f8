package autofetch

import (
	"context"
	"time"
)

// Source categories of a capture, matching the message arrays they came from.
const (
	SourceSrcset   = "srcset"
	SourceSrc      = "src"
	SourceMedia    = "media"
	SourceFetchAll = "fetch-all"
)

// Capture records one fetch performed by the worker.
type Capture struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Mod         Mod       `json:"mod"`
	Bytes       int       `json:"bytes"`
	ContentHash string    `json:"contentHash"`
	Error       string    `json:"error"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Validate returns an error if the capture contains invalid fields.
func (c *Capture) Validate() error {
	if c.URL == "" {
		return Errorf(EINVALID, "capture URL required")
	}
	switch c.Source {
	case SourceSrcset, SourceSrc, SourceMedia, SourceFetchAll:
	default:
		return Errorf(EINVALID, "unknown capture source %q", c.Source)
	}
	return nil
}

// CaptureFilter represents a filter for FindCaptures.
type CaptureFilter struct {
	URL    *string `json:"url"`
	Source *string `json:"source"`
	Failed *bool   `json:"failed"`

	// Since restricts results to captures fetched at or after this time.
	Since *time.Time `json:"since"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// CaptureService persists the outcome of worker fetches.
type CaptureService interface {
	// CreateCapture records a capture, assigning its ID and, when unset,
	// its timestamp.
	CreateCapture(ctx context.Context, c *Capture) error

	// FindCaptureByID retrieves a capture by ID.
	// Returns ENOTFOUND if the capture does not exist.
	FindCaptureByID(ctx context.Context, id string) (*Capture, error)

	// FindCaptures retrieves captures matching the filter, newest first.
	FindCaptures(ctx context.Context, filter CaptureFilter) ([]*Capture, error)
}
