package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fwojciec/autofetch"
)

// Ensure FramePoster implements autofetch.FrameMessenger at compile time.
var _ autofetch.FrameMessenger = (*FramePoster)(nil)

// FramePoster delivers subordinate frame messages to a RelayServer.
type FramePoster struct {
	client   *http.Client
	relayURL string
	origin   string
}

// PosterOption configures a FramePoster.
type PosterOption func(*FramePoster)

// WithOrigin sets the Origin header sent with each post.
func WithOrigin(origin string) PosterOption {
	return func(p *FramePoster) {
		p.origin = origin
	}
}

// WithPosterTimeout sets the HTTP client timeout.
func WithPosterTimeout(d time.Duration) PosterOption {
	return func(p *FramePoster) {
		p.client.Timeout = d
	}
}

// NewFramePoster creates a FramePoster posting to relayURL.
func NewFramePoster(relayURL string, opts ...PosterOption) *FramePoster {
	p := &FramePoster{
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		relayURL: relayURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PostToTop posts payload as JSON to the relay.
func (p *FramePoster) PostToTop(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return autofetch.Errorf(autofetch.EINVALID, "encoding payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.relayURL, bytes.NewReader(body))
	if err != nil {
		return autofetch.Errorf(autofetch.EINVALID, "invalid relay URL: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.origin != "" {
		req.Header.Set("Origin", p.origin)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay returned HTTP %d", resp.StatusCode)
	}
	return nil
}
