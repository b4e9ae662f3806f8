package rod

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/fwojciec/autofetch"
	"github.com/go-rod/rod"
)

// Ensure Fetcher implements autofetch.Fetcher at compile time.
var _ autofetch.Fetcher = (*Fetcher)(nil)

// fetchJS runs window.fetch in the page so requests carry the page's
// origin, cookies and proxy settings.
const fetchJS = `async (url) => {
	const res = await fetch(url, {credentials: "include"});
	return JSON.stringify({status: res.status, body: await res.text()});
}`

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Fetcher retrieves URLs from inside a page with window.fetch.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	page   *rod.Page
	closed atomic.Bool
}

// NewFetcher creates a Fetcher issuing requests from page. Closing the
// Fetcher does not close the page.
func NewFetcher(page *rod.Page) *Fetcher {
	return &Fetcher{page: page}
}

// Fetch returns the body of url. Non-2xx responses are errors; 404 and 410
// map to ENOTFOUND.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.closed.Load() {
		return "", autofetch.Errorf(autofetch.EINVALID, "fetcher is closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := f.page.Context(ctx).Eval(fetchJS, url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}

	var result fetchResult
	if err := json.Unmarshal([]byte(res.Value.Str()), &result); err != nil {
		return "", autofetch.Errorf(autofetch.EINTERNAL, "decoding fetch result: %v", err)
	}

	switch {
	case result.Status == http.StatusNotFound || result.Status == http.StatusGone:
		return "", autofetch.Errorf(autofetch.ENOTFOUND, "%s: HTTP %d", url, result.Status)
	case result.Status < 200 || result.Status > 299:
		return "", fmt.Errorf("%s: HTTP %d", url, result.Status)
	}
	return result.Body, nil
}

// Close marks the fetcher closed. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	f.closed.Store(true)
	return nil
}
