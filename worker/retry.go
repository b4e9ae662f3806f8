package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/autofetch"
)

// fetchWithRetry fetches url, retrying after each delay in turn. Context
// cancellation stops retrying immediately.
func fetchWithRetry(ctx context.Context, fetcher autofetch.Fetcher, url string, delays []time.Duration, logger *slog.Logger) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(delays); attempt++ {
		body, err := fetcher.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == len(delays) {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		logger.Debug("retrying fetch", "url", url, "attempt", attempt+2, "err", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}
	return "", lastErr
}
