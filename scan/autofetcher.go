package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/autofetch"
)

// AutoFetcher is itself a WorkerChannel so a relay can feed it.
var _ autofetch.WorkerChannel = (*AutoFetcher)(nil)

// Config wires an AutoFetcher.
type Config struct {
	Document autofetch.Document

	// Channel selection and worker bootstrap.
	Channel ChannelConfig

	// WrapChannel decorates the selected channel, e.g. with logging or
	// metrics. Optional.
	WrapChannel func(autofetch.WorkerChannel) autofetch.WorkerChannel

	// Stylesheet reparse.
	ProxyFetcher autofetch.Fetcher
	Parser       autofetch.StyleParser
	ProxyMagic   string

	CheckInterval     time.Duration
	ReadyPollInterval time.Duration
	TickerFunc        TickerFunc

	Logger *slog.Logger
}

// AutoFetcher discovers lazily loaded resources in one document for as long
// as it runs.
type AutoFetcher struct {
	scanner   *Scanner
	scheduler *Scheduler
	channel   autofetch.WorkerChannel
}

// Start selects the worker channel, then begins scheduling passes. No pass
// runs unless the channel was established.
func Start(ctx context.Context, cfg Config) (*AutoFetcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Channel.Logger == nil {
		cfg.Channel.Logger = logger
	}

	ch, err := NewChannel(ctx, cfg.Channel)
	if err != nil {
		return nil, err
	}
	posted := ch
	if cfg.WrapChannel != nil {
		posted = cfg.WrapChannel(ch)
	}

	scanner := &Scanner{
		Document:   cfg.Document,
		Channel:    posted,
		Fetcher:    cfg.ProxyFetcher,
		Parser:     cfg.Parser,
		ProxyMagic: cfg.ProxyMagic,
		Logger:     logger,
	}

	opts := []SchedulerOption{WithSchedulerLogger(logger)}
	if cfg.CheckInterval > 0 {
		opts = append(opts, WithCheckInterval(cfg.CheckInterval))
	}
	if cfg.ReadyPollInterval > 0 {
		opts = append(opts, WithReadyPollInterval(cfg.ReadyPollInterval))
	}
	if cfg.TickerFunc != nil {
		opts = append(opts, WithTickerFunc(cfg.TickerFunc))
	}
	scheduler := NewScheduler(cfg.Document, scanner.ExtractFromLocalDoc, opts...)

	af := &AutoFetcher{scanner: scanner, scheduler: scheduler, channel: ch}
	scheduler.Start(ctx)
	return af, nil
}

// Pause stops periodic passes.
func (a *AutoFetcher) Pause() { a.scheduler.Pause() }

// Resume restarts periodic passes.
func (a *AutoFetcher) Resume() { a.scheduler.Resume() }

// JustFetch asks the worker to fetch urls.
func (a *AutoFetcher) JustFetch(urls []string) { a.scanner.JustFetch(urls) }

// PostMessage sends msg to the worker unchanged.
func (a *AutoFetcher) PostMessage(msg *autofetch.Message) { a.scanner.PostMessage(msg) }

// Scanner returns the underlying scanner.
func (a *AutoFetcher) Scanner() *Scanner { return a.scanner }

// Scheduler returns the underlying scheduler.
func (a *AutoFetcher) Scheduler() *Scheduler { return a.scheduler }

// Terminate stops scheduling, lets outstanding stylesheet refetches post,
// and then terminates the worker channel.
func (a *AutoFetcher) Terminate() {
	a.scheduler.Terminate()
	a.scanner.Wait()
	a.scanner.Terminate()
}

// Finish is Terminate for one-shot runs: a worker owned by the channel
// processes everything queued before it stops.
func (a *AutoFetcher) Finish() {
	a.scheduler.Terminate()
	a.scanner.Wait()
	if d, ok := a.channel.(drainer); ok {
		d.Drain()
		return
	}
	a.scanner.Terminate()
}
