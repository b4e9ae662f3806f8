package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/autofetch"
)

// DefaultQueueDepth is the number of messages a TopChannel buffers before
// dropping.
const DefaultQueueDepth = 256

// DefaultForwardTimeout bounds one cross-frame forward.
const DefaultForwardTimeout = 5 * time.Second

// Compile-time interface verification.
var (
	_ autofetch.WorkerChannel = (*TopChannel)(nil)
	_ autofetch.WorkerChannel = (*FrameChannel)(nil)
)

// Worker consumes messages until the channel is closed or ctx is done.
type Worker interface {
	Run(ctx context.Context, messages <-chan *autofetch.Message) error
}

// drainer is implemented by channels that can finish queued work.
type drainer interface {
	Drain()
}

// queueSizer is implemented by workers that prefer a queue depth.
type queueSizer interface {
	QueueDepth() int
}

// WorkerFactory instantiates a worker from its definition text.
type WorkerFactory func(definition string) (Worker, error)

// TopChannel owns a worker running in its own goroutine and feeds it
// through a bounded queue.
type TopChannel struct {
	logger *slog.Logger
	queue  chan *autofetch.Message
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewTopChannel starts w and returns a channel feeding it. The worker stops
// when ctx is done or the channel is terminated.
func NewTopChannel(ctx context.Context, w Worker, queueDepth int, logger *slog.Logger) *TopChannel {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &TopChannel{
		logger: logger,
		queue:  make(chan *autofetch.Message, queueDepth),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		if err := w.Run(ctx, c.queue); err != nil && ctx.Err() == nil {
			logger.Error("worker stopped", "err", err)
		}
	}()

	return c
}

// PostMessage queues msg for the worker. The message is dropped when the
// queue is full or the channel has been terminated.
func (c *TopChannel) PostMessage(msg *autofetch.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.logger.Warn("worker terminated, dropping message", "type", msg.Type)
		return
	}
	select {
	case c.queue <- msg:
	default:
		c.logger.Warn("worker queue full, dropping message", "type", msg.Type)
	}
}

// Terminate stops the worker and waits for it to exit. Messages still
// queued may be skipped. Terminate is idempotent.
func (c *TopChannel) Terminate() {
	c.closeQueue()
	c.cancel()
	<-c.done
}

// Drain stops accepting messages and waits until the worker has processed
// everything already queued.
func (c *TopChannel) Drain() {
	c.closeQueue()
	<-c.done
	c.cancel()
}

func (c *TopChannel) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

// Done is closed once the worker has exited.
func (c *TopChannel) Done() <-chan struct{} {
	return c.done
}

// FrameChannelOption configures a FrameChannel.
type FrameChannelOption func(*FrameChannel)

// WithForwardTimeout sets the timeout for one forward to the top frame.
func WithForwardTimeout(d time.Duration) FrameChannelOption {
	return func(c *FrameChannel) {
		c.timeout = d
	}
}

// WithFrameLogger sets the logger used for forwarding failures.
func WithFrameLogger(logger *slog.Logger) FrameChannelOption {
	return func(c *FrameChannel) {
		c.logger = logger
	}
}

// FrameChannel forwards messages from a subordinate frame to the top frame,
// which owns the worker.
type FrameChannel struct {
	messenger autofetch.FrameMessenger
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFrameChannel creates a FrameChannel sending through messenger.
func NewFrameChannel(messenger autofetch.FrameMessenger, opts ...FrameChannelOption) *FrameChannel {
	c := &FrameChannel{
		messenger: messenger,
		timeout:   DefaultForwardTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostMessage forwards msg to the top frame. Untagged messages are wrapped
// in an aaworker envelope; tagged ones are forwarded as they are.
// Forwarding failures are logged.
func (c *FrameChannel) PostMessage(msg *autofetch.Message) {
	var payload any = msg
	if msg.WBType == "" {
		payload = &autofetch.Envelope{WBType: autofetch.EnvelopeTag, Msg: msg}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.messenger.PostToTop(ctx, payload); err != nil {
		c.logger.Warn("forward to top frame failed", "type", msg.Type, "err", err)
	}
}

// Terminate is a no-op: the worker belongs to the top frame.
func (c *FrameChannel) Terminate() {}

// ChannelConfig selects and configures the worker channel for a posture.
type ChannelConfig struct {
	Posture autofetch.Posture

	// Top posture: the worker definition is fetched from WorkerPrefixURL
	// and instantiated with NewWorker.
	Fetcher         autofetch.Fetcher
	WorkerPrefixURL string
	NewWorker       WorkerFactory

	// QueueDepth overrides the depth preferred by the worker.
	QueueDepth int

	// Subordinate posture.
	Messenger autofetch.FrameMessenger

	Logger *slog.Logger
}

// NewChannel returns the worker channel for cfg.Posture. In the top
// posture it fetches the worker definition and starts the worker; a
// failure there is returned and auto-fetch must not start.
func NewChannel(ctx context.Context, cfg ChannelConfig) (autofetch.WorkerChannel, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Posture {
	case autofetch.PostureTop:
		if cfg.Fetcher == nil || cfg.NewWorker == nil {
			return nil, autofetch.Errorf(autofetch.EINVALID, "top posture requires a fetcher and a worker factory")
		}
		if cfg.WorkerPrefixURL == "" {
			return nil, autofetch.Errorf(autofetch.EINVALID, "worker prefix URL required")
		}
		definition, err := cfg.Fetcher.Fetch(ctx, cfg.WorkerPrefixURL)
		if err != nil {
			return nil, fmt.Errorf("fetching worker definition: %w", err)
		}
		w, err := cfg.NewWorker(definition)
		if err != nil {
			return nil, fmt.Errorf("instantiating worker: %w", err)
		}
		depth := cfg.QueueDepth
		if qs, ok := w.(queueSizer); ok && depth <= 0 {
			depth = qs.QueueDepth()
		}
		return NewTopChannel(ctx, w, depth, logger), nil

	case autofetch.PostureSubordinate:
		if cfg.Messenger == nil {
			return nil, autofetch.Errorf(autofetch.EINVALID, "subordinate posture requires a frame messenger")
		}
		return NewFrameChannel(cfg.Messenger, WithFrameLogger(logger)), nil

	default:
		return nil, autofetch.Errorf(autofetch.EINVALID, "unknown posture %d", int(cfg.Posture))
	}
}
