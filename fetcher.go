package autofetch

import "context"

// Fetcher retrieves the body of a URL as text.
type Fetcher interface {
	// Fetch performs a GET and returns the response body.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string) (body string, err error)

	// Close releases resources.
	// Must be called when the Fetcher is no longer needed.
	Close() error
}
