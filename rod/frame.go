package rod

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fwojciec/autofetch"
	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
)

// RelayBinding is the name of the function exposed to the top page.
const RelayBinding = "__autofetchRelay"

// Ensure FrameMessenger implements autofetch.FrameMessenger at compile time.
var _ autofetch.FrameMessenger = (*FrameMessenger)(nil)

// FrameMessenger posts messages from a subordinate frame to window.top.
type FrameMessenger struct {
	frame *rod.Page
}

// NewFrameMessenger creates a FrameMessenger for frame, typically obtained
// with (*rod.Element).Frame on an iframe.
func NewFrameMessenger(frame *rod.Page) *FrameMessenger {
	return &FrameMessenger{frame: frame}
}

// PostToTop calls window.top.postMessage with payload and any target origin.
func (m *FrameMessenger) PostToTop(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return autofetch.Errorf(autofetch.EINVALID, "encoding payload: %v", err)
	}
	_, err = m.frame.Context(ctx).Eval(`(data) => { window.top.postMessage(JSON.parse(data), "*"); }`, string(data))
	if err != nil {
		return fmt.Errorf("posting to top frame: %w", err)
	}
	return nil
}

// relayListener forwards aaworker message events to the exposed binding.
const relayListener = `window.addEventListener("message", (e) => {
	const d = e.data;
	if (d && d.wb_type === "aaworker" && typeof window.` + RelayBinding + ` === "function") {
		window.` + RelayBinding + `(JSON.stringify({origin: e.origin, envelope: d}));
	}
});`

// relayEvent is what the listener hands to the binding.
type relayEvent struct {
	Origin   string             `json:"origin"`
	Envelope autofetch.Envelope `json:"envelope"`
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithAllowedOrigins restricts relaying to events from origins. With no
// origins configured every origin is accepted.
func WithAllowedOrigins(origins ...string) RelayOption {
	return func(r *Relay) {
		for _, o := range origins {
			r.origins[o] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

// Relay runs in the top page and delivers aaworker envelopes posted by
// subordinate frames to the top frame's worker channel.
type Relay struct {
	page    *rod.Page
	channel autofetch.WorkerChannel
	origins map[string]bool
	logger  *slog.Logger

	mu    sync.Mutex
	stops []func() error
}

// NewRelay creates a Relay for the top page.
func NewRelay(page *rod.Page, channel autofetch.WorkerChannel, opts ...RelayOption) *Relay {
	r := &Relay{
		page:    page,
		channel: channel,
		origins: make(map[string]bool),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start exposes the relay binding and installs the message listener in the
// current document and every document loaded afterwards. The binding and
// the listener outlive ctx; they are removed by Stop.
func (r *Relay) Start(ctx context.Context) error {
	stopBinding, err := r.page.Expose(RelayBinding, func(arg gson.JSON) (any, error) {
		r.Deliver(arg.Str())
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("exposing relay binding: %w", err)
	}
	removeScript, err := r.page.EvalOnNewDocument(relayListener)
	if err != nil {
		_ = stopBinding()
		return fmt.Errorf("installing relay listener: %w", err)
	}
	if _, err := r.page.Context(ctx).Eval(`() => {` + relayListener + `}`); err != nil {
		_ = removeScript()
		_ = stopBinding()
		return fmt.Errorf("installing relay listener: %w", err)
	}

	r.mu.Lock()
	r.stops = append(r.stops, removeScript, stopBinding)
	r.mu.Unlock()
	return nil
}

// Deliver handles one serialized message event. Events from disallowed
// origins, untagged envelopes and envelopes without a message are dropped.
func (r *Relay) Deliver(data string) {
	var ev relayEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		r.logger.Warn("relay event not decodable", "err", err)
		return
	}
	if len(r.origins) > 0 && !r.origins[ev.Origin] {
		r.logger.Warn("relay event from disallowed origin", "origin", ev.Origin)
		return
	}
	if ev.Envelope.WBType != autofetch.EnvelopeTag || ev.Envelope.Msg == nil {
		return
	}
	r.channel.PostMessage(ev.Envelope.Msg)
}

// Stop removes the binding and the listener script.
func (r *Relay) Stop() error {
	r.mu.Lock()
	stops := r.stops
	r.stops = nil
	r.mu.Unlock()

	var firstErr error
	for _, stop := range stops {
		if err := stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
