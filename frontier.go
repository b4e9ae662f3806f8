package autofetch

import "context"

// SeenSet records URLs the worker has already scheduled.
type SeenSet interface {
	// Visit marks the URL as seen.
	// Returns false if the URL had been seen before.
	Visit(url string) bool
}

// DomainLimiter provides per-domain rate limiting.
type DomainLimiter interface {
	// Wait blocks until the rate limit allows a request to the domain.
	// Returns an error if the context is canceled.
	Wait(ctx context.Context, domain string) error
}
