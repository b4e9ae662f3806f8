// Package worker fetches the resources discovered by a scanner so that they
// end up in the archive.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/bloom"
	"golang.org/x/sync/errgroup"
)

// Worker consumes discovery messages and fetches every new URL they name.
type Worker struct {
	Fetcher  autofetch.Fetcher
	Seen     autofetch.SeenSet
	Limiter  autofetch.DomainLimiter
	Captures autofetch.CaptureService

	Prefix      string
	Concurrency int
	RetryDelays []time.Duration

	// Depth is the number of messages the feeding channel should buffer.
	Depth int

	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// New builds a worker from a definition with a Bloom-filter seen set and
// a per-domain limiter. captures may be nil.
func New(def *Definition, fetcher autofetch.Fetcher, captures autofetch.CaptureService, logger *slog.Logger) *Worker {
	return &Worker{
		Fetcher:     fetcher,
		Seen:        bloom.NewFilter(def.ExpectedURLs, DefaultFPRate),
		Limiter:     NewDomainLimiter(def.RPS, 1),
		Captures:    captures,
		Prefix:      def.Prefix,
		Concurrency: def.Concurrency,
		RetryDelays: def.RetryDelays(),
		Depth:       def.QueueDepth,
		Logger:      logger,
	}
}

// QueueDepth returns the preferred message buffer size.
func (w *Worker) QueueDepth() int {
	return w.Depth
}

// Run processes messages until the channel is closed or ctx is done, then
// waits for in-flight fetches. It returns ctx.Err() when stopped by ctx.
func (w *Worker) Run(ctx context.Context, messages <-chan *autofetch.Message) error {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return g.Wait()
			}
			w.dispatch(gctx, g, msg)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, g *errgroup.Group, msg *autofetch.Message) {
	targets := Expand(msg, w.Prefix)
	w.logger().Debug("message received", "type", msg.Type, "targets", len(targets))

	for _, t := range targets {
		if !w.Seen.Visit(t.FetchURL) {
			continue
		}
		g.Go(func() error {
			w.Fetch(ctx, t)
			return nil
		})
	}
}

// Fetch retrieves one target and records the outcome. Failures are
// recorded, not returned.
func (w *Worker) Fetch(ctx context.Context, t Target) *autofetch.Capture {
	if w.Limiter != nil {
		if u, err := url.Parse(t.URL); err == nil {
			if err := w.Limiter.Wait(ctx, u.Host); err != nil {
				return nil
			}
		}
	}

	body, err := fetchWithRetry(ctx, w.Fetcher, t.FetchURL, w.RetryDelays, w.logger())

	c := &autofetch.Capture{
		URL:       t.URL,
		Source:    t.Source,
		Mod:       t.Mod,
		FetchedAt: w.now(),
	}
	if err != nil {
		c.Error = err.Error()
		w.logger().Warn("fetch failed", "url", t.FetchURL, "err", err)
	} else {
		c.Bytes = len(body)
		c.ContentHash = ComputeHash(body)
	}

	if w.Captures != nil {
		if err := w.Captures.CreateCapture(ctx, c); err != nil {
			w.logger().Error("recording capture failed", "url", t.URL, "err", err)
		}
	}
	return c
}

// ComputeHash computes a hash of fetched content using xxhash.
func ComputeHash(content string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(content))
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}
