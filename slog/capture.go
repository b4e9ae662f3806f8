package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/autofetch"
)

// Ensure LoggingCaptureService implements autofetch.CaptureService.
var _ autofetch.CaptureService = (*LoggingCaptureService)(nil)

// LoggingCaptureService wraps a CaptureService with debug logging.
type LoggingCaptureService struct {
	next   autofetch.CaptureService
	logger *slog.Logger
}

// NewLoggingCaptureService creates a new LoggingCaptureService.
func NewLoggingCaptureService(next autofetch.CaptureService, logger *slog.Logger) *LoggingCaptureService {
	return &LoggingCaptureService{next: next, logger: logger}
}

// CreateCapture delegates and logs the recorded outcome.
func (s *LoggingCaptureService) CreateCapture(ctx context.Context, capture *autofetch.Capture) (err error) {
	defer func(begin time.Time) {
		s.logger.Debug("create capture",
			"url", capture.URL,
			"source", capture.Source,
			"bytes", capture.Bytes,
			"failed", capture.Error != "",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.CreateCapture(ctx, capture)
}

// FindCaptureByID delegates to the wrapped service.
func (s *LoggingCaptureService) FindCaptureByID(ctx context.Context, id string) (*autofetch.Capture, error) {
	return s.next.FindCaptureByID(ctx, id)
}

// FindCaptures delegates and logs the result count.
func (s *LoggingCaptureService) FindCaptures(ctx context.Context, filter autofetch.CaptureFilter) (captures []*autofetch.Capture, err error) {
	defer func(begin time.Time) {
		s.logger.Debug("find captures",
			"count", len(captures),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FindCaptures(ctx, filter)
}
