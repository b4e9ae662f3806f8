package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/bloom"
	"github.com/fwojciec/autofetch/mock"
	"github.com/fwojciec/autofetch/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLog records captures created by a worker.
type captureLog struct {
	mu       sync.Mutex
	captures []*autofetch.Capture
}

func (l *captureLog) service() *mock.CaptureService {
	return &mock.CaptureService{
		CreateCaptureFn: func(ctx context.Context, c *autofetch.Capture) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.captures = append(l.captures, c)
			return nil
		},
	}
}

func (l *captureLog) byURL() map[string]*autofetch.Capture {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]*autofetch.Capture)
	for _, c := range l.captures {
		m[c.URL] = c
	}
	return m
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	t.Run("fetches each new URL once and records captures", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		fetched := map[string]int{}
		fetcher := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				fetched[url]++
				if url == "https://example.com/missing.jpg" {
					return "", errors.New("404 not found")
				}
				return "body of " + url, nil
			},
		}
		log := &captureLog{}
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		w := &worker.Worker{
			Fetcher:     fetcher,
			Seen:        bloom.NewFilter(100, 0.001),
			Captures:    log.service(),
			Concurrency: 2,
			Now:         func() time.Time { return fixed },
		}

		messages := make(chan *autofetch.Message, 3)
		messages <- &autofetch.Message{
			Type:   autofetch.MessageValues,
			Srcset: []autofetch.URLRecord{{Value: "/a.jpg 1x, /missing.jpg 2x", Resolve: "https://example.com/", Mod: autofetch.ModImage}},
		}
		messages <- &autofetch.Message{
			Type: autofetch.MessageValues,
			Src:  []autofetch.URLRecord{{Value: "/a.jpg", Resolve: "https://example.com/", Mod: autofetch.ModImage}},
		}
		messages <- &autofetch.Message{Type: autofetch.MessageFetchAll, Values: []string{"https://example.com/a.jpg#again"}}
		close(messages)

		err := w.Run(context.Background(), messages)

		require.NoError(t, err)
		assert.Equal(t, map[string]int{
			"https://example.com/a.jpg":       1,
			"https://example.com/missing.jpg": 1,
		}, fetched)

		captures := log.byURL()
		require.Len(t, captures, 2)

		ok := captures["https://example.com/a.jpg"]
		assert.Equal(t, autofetch.SourceSrcset, ok.Source)
		assert.Equal(t, autofetch.ModImage, ok.Mod)
		assert.Equal(t, len("body of https://example.com/a.jpg"), ok.Bytes)
		assert.Equal(t, worker.ComputeHash("body of https://example.com/a.jpg"), ok.ContentHash)
		assert.Empty(t, ok.Error)
		assert.Equal(t, fixed, ok.FetchedAt)

		failed := captures["https://example.com/missing.jpg"]
		assert.Equal(t, "404 not found", failed.Error)
		assert.Zero(t, failed.Bytes)
	})

	t.Run("rate limits by host", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var hosts []string
		w := &worker.Worker{
			Fetcher: &mock.Fetcher{FetchFn: func(ctx context.Context, url string) (string, error) { return "", nil }},
			Seen:    &mock.SeenSet{VisitFn: func(url string) bool { return true }},
			Limiter: &mock.DomainLimiter{WaitFn: func(ctx context.Context, domain string) error {
				mu.Lock()
				defer mu.Unlock()
				hosts = append(hosts, domain)
				return nil
			}},
			Concurrency: 1,
		}

		messages := make(chan *autofetch.Message, 1)
		messages <- &autofetch.Message{Type: autofetch.MessageFetchAll, Values: []string{
			"https://img.example.com/1.jpg",
			"https://cdn.example.net:8443/2.jpg",
		}}
		close(messages)

		require.NoError(t, w.Run(context.Background(), messages))
		assert.Equal(t, []string{"img.example.com", "cdn.example.net:8443"}, hosts)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		w := &worker.Worker{
			Fetcher: &mock.Fetcher{FetchFn: func(ctx context.Context, url string) (string, error) { return "", nil }},
			Seen:    bloom.NewFilter(10, 0.01),
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := w.Run(ctx, make(chan *autofetch.Message))

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWorker_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("retries failed fetches", func(t *testing.T) {
		t.Parallel()

		calls := 0
		w := &worker.Worker{
			Fetcher: &mock.Fetcher{FetchFn: func(ctx context.Context, url string) (string, error) {
				calls++
				if calls == 1 {
					return "", errors.New("connection reset")
				}
				return "ok", nil
			}},
			RetryDelays: []time.Duration{time.Millisecond},
		}

		c := w.Fetch(context.Background(), worker.Target{URL: "https://example.com/a.css", FetchURL: "https://example.com/a.css", Source: autofetch.SourceMedia})

		require.NotNil(t, c)
		assert.Equal(t, 2, calls)
		assert.Empty(t, c.Error)
		assert.Equal(t, 2, c.Bytes)
	})

	t.Run("records the last error once retries are exhausted", func(t *testing.T) {
		t.Parallel()

		calls := 0
		w := &worker.Worker{
			Fetcher: &mock.Fetcher{FetchFn: func(ctx context.Context, url string) (string, error) {
				calls++
				return "", errors.New("timeout")
			}},
			RetryDelays: []time.Duration{time.Millisecond, time.Millisecond},
		}

		c := w.Fetch(context.Background(), worker.Target{URL: "https://example.com/a.css", FetchURL: "https://example.com/a.css", Source: autofetch.SourceMedia})

		assert.Equal(t, 3, calls)
		assert.Equal(t, "timeout", c.Error)
	})

	t.Run("requests the prefixed URL and records the original", func(t *testing.T) {
		t.Parallel()

		var requested string
		w := &worker.Worker{
			Fetcher: &mock.Fetcher{FetchFn: func(ctx context.Context, url string) (string, error) {
				requested = url
				return "", nil
			}},
		}

		c := w.Fetch(context.Background(), worker.Target{
			URL:      "https://example.com/a.jpg",
			FetchURL: "https://archive.example/web/im_/https://example.com/a.jpg",
			Source:   autofetch.SourceSrc,
			Mod:      autofetch.ModImage,
		})

		assert.Equal(t, "https://archive.example/web/im_/https://example.com/a.jpg", requested)
		assert.Equal(t, "https://example.com/a.jpg", c.URL)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	def, err := worker.ParseDefinition(`{"prefix": "https://archive.example/web/", "queueDepth": 7, "retries": 1}`)
	require.NoError(t, err)

	w := worker.New(def, &mock.Fetcher{}, nil, nil)

	assert.Equal(t, "https://archive.example/web/", w.Prefix)
	assert.Equal(t, worker.DefaultConcurrency, w.Concurrency)
	assert.Equal(t, 7, w.QueueDepth())
	assert.Equal(t, []time.Duration{time.Second}, w.RetryDelays)
	assert.NotNil(t, w.Seen)
	assert.NotNil(t, w.Limiter)
}
