package mock

import (
	"context"

	"github.com/fwojciec/autofetch"
)

var _ autofetch.CaptureService = (*CaptureService)(nil)

// CaptureService is a mock implementation of autofetch.CaptureService.
type CaptureService struct {
	CreateCaptureFn   func(ctx context.Context, c *autofetch.Capture) error
	FindCaptureByIDFn func(ctx context.Context, id string) (*autofetch.Capture, error)
	FindCapturesFn    func(ctx context.Context, filter autofetch.CaptureFilter) ([]*autofetch.Capture, error)
}

func (s *CaptureService) CreateCapture(ctx context.Context, c *autofetch.Capture) error {
	return s.CreateCaptureFn(ctx, c)
}

func (s *CaptureService) FindCaptureByID(ctx context.Context, id string) (*autofetch.Capture, error) {
	return s.FindCaptureByIDFn(ctx, id)
}

func (s *CaptureService) FindCaptures(ctx context.Context, filter autofetch.CaptureFilter) ([]*autofetch.Capture, error) {
	return s.FindCapturesFn(ctx, filter)
}
