// Package prometheus instruments autofetch services with Prometheus
// collectors.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/autofetch"
	"github.com/prometheus/client_golang/prometheus"
)

// Compile-time interface verification.
var (
	_ autofetch.WorkerChannel = (*Channel)(nil)
	_ autofetch.Fetcher       = (*Fetcher)(nil)
)

// Metrics owns the collectors shared by the decorators in this package.
type Metrics struct {
	messages     *prometheus.CounterVec
	records      *prometheus.CounterVec
	terminations prometheus.Counter

	fetches       *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors against reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autofetch_messages_total",
			Help: "Messages posted to the worker channel by type.",
		}, []string{"type"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autofetch_records_total",
			Help: "Discovered records posted to the worker channel by category.",
		}, []string{"category"}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autofetch_channel_terminations_total",
			Help: "Worker channel terminations.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autofetch_fetches_total",
			Help: "Fetches partitioned by result.",
		}, []string{"result"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autofetch_fetch_bytes_total",
			Help: "Bytes returned by successful fetches.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autofetch_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by result.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{
		m.messages,
		m.records,
		m.terminations,
		m.fetches,
		m.fetchBytes,
		m.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register autofetch collector: %w", err)
		}
	}
	return m, nil
}

// Channel counts messages and records passing to the wrapped channel.
type Channel struct {
	next    autofetch.WorkerChannel
	metrics *Metrics
}

// NewChannel wraps next.
func NewChannel(next autofetch.WorkerChannel, metrics *Metrics) *Channel {
	return &Channel{next: next, metrics: metrics}
}

func (c *Channel) PostMessage(msg *autofetch.Message) {
	c.metrics.messages.WithLabelValues(string(msg.Type)).Inc()
	c.observeRecords(autofetch.SourceSrcset, len(msg.Srcset))
	c.observeRecords(autofetch.SourceSrc, len(msg.Src))
	c.observeRecords(autofetch.SourceMedia, len(msg.Media))
	c.observeRecords(autofetch.SourceFetchAll, len(msg.Values))
	c.next.PostMessage(msg)
}

func (c *Channel) observeRecords(category string, n int) {
	if n > 0 {
		c.metrics.records.WithLabelValues(category).Add(float64(n))
	}
}

func (c *Channel) Terminate() {
	c.metrics.terminations.Inc()
	c.next.Terminate()
}

// Fetcher records the outcome and duration of every fetch.
type Fetcher struct {
	next    autofetch.Fetcher
	metrics *Metrics
}

// NewFetcher wraps next.
func NewFetcher(next autofetch.Fetcher, metrics *Metrics) *Fetcher {
	return &Fetcher{next: next, metrics: metrics}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	begin := time.Now()
	body, err := f.next.Fetch(ctx, url)
	result := fetchResult(err)
	f.metrics.fetches.WithLabelValues(result).Inc()
	f.metrics.fetchDuration.WithLabelValues(result).Observe(time.Since(begin).Seconds())
	if err == nil {
		f.metrics.fetchBytes.Add(float64(len(body)))
	}
	return body, err
}

func (f *Fetcher) Close() error {
	return f.next.Close()
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case autofetch.ErrorCode(err) == autofetch.ENOTFOUND:
		return "not_found"
	default:
		return "error"
	}
}
