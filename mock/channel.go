package mock

import (
	"context"
	"sync"

	"github.com/fwojciec/autofetch"
)

// Compile-time interface verification.
var (
	_ autofetch.WorkerChannel  = (*WorkerChannel)(nil)
	_ autofetch.WorkerChannel  = (*RecordingChannel)(nil)
	_ autofetch.FrameMessenger = (*FrameMessenger)(nil)
)

// WorkerChannel is a mock implementation of autofetch.WorkerChannel.
type WorkerChannel struct {
	PostMessageFn func(msg *autofetch.Message)
	TerminateFn   func()
}

func (c *WorkerChannel) PostMessage(msg *autofetch.Message) {
	c.PostMessageFn(msg)
}

func (c *WorkerChannel) Terminate() {
	c.TerminateFn()
}

// RecordingChannel is a WorkerChannel that keeps every posted message.
// It is safe for concurrent use.
type RecordingChannel struct {
	mu         sync.Mutex
	messages   []*autofetch.Message
	terminated bool
}

func (c *RecordingChannel) PostMessage(msg *autofetch.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *RecordingChannel) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
}

// Messages returns a copy of the posted messages in arrival order.
func (c *RecordingChannel) Messages() []*autofetch.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*autofetch.Message(nil), c.messages...)
}

// Terminated reports whether Terminate was called.
func (c *RecordingChannel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// FrameMessenger is a mock implementation of autofetch.FrameMessenger.
type FrameMessenger struct {
	PostToTopFn func(ctx context.Context, payload any) error
}

func (m *FrameMessenger) PostToTop(ctx context.Context, payload any) error {
	return m.PostToTopFn(ctx, payload)
}
