package slog

import (
	"log/slog"

	"github.com/fwojciec/autofetch"
)

// Ensure LoggingChannel implements autofetch.WorkerChannel.
var _ autofetch.WorkerChannel = (*LoggingChannel)(nil)

// LoggingChannel wraps a WorkerChannel and logs every dispatched message.
type LoggingChannel struct {
	next   autofetch.WorkerChannel
	logger *slog.Logger
}

// NewLoggingChannel creates a new LoggingChannel.
func NewLoggingChannel(next autofetch.WorkerChannel, logger *slog.Logger) *LoggingChannel {
	return &LoggingChannel{next: next, logger: logger}
}

// PostMessage logs the message shape and delegates.
func (c *LoggingChannel) PostMessage(msg *autofetch.Message) {
	c.logger.Info("post message",
		"type", msg.Type,
		"srcset", len(msg.Srcset),
		"src", len(msg.Src),
		"media", len(msg.Media),
		"values", len(msg.Values),
	)
	c.next.PostMessage(msg)
}

// Terminate logs and delegates.
func (c *LoggingChannel) Terminate() {
	c.logger.Info("terminate worker channel")
	c.next.Terminate()
}
