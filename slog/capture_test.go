package slog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/mock"
	afslog "github.com/fwojciec/autofetch/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingCaptureService(t *testing.T) {
	t.Parallel()

	t.Run("logs created captures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.CaptureService{
			CreateCaptureFn: func(ctx context.Context, c *autofetch.Capture) error {
				c.ID = "id-1"
				return nil
			},
		}
		svc := afslog.NewLoggingCaptureService(inner, debugLogger(&buf))
		c := &autofetch.Capture{URL: "https://example.com/a.png", Source: autofetch.SourceSrc, Bytes: 42}

		require.NoError(t, svc.CreateCapture(context.Background(), c))

		assert.Equal(t, "id-1", c.ID)
		output := buf.String()
		assert.Contains(t, output, "msg=\"create capture\"")
		assert.Contains(t, output, "source=src")
		assert.Contains(t, output, "bytes=42")
		assert.Contains(t, output, "failed=false")
	})

	t.Run("logs find result counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.CaptureService{
			FindCapturesFn: func(ctx context.Context, filter autofetch.CaptureFilter) ([]*autofetch.Capture, error) {
				return []*autofetch.Capture{{ID: "a"}, {ID: "b"}}, nil
			},
			FindCaptureByIDFn: func(ctx context.Context, id string) (*autofetch.Capture, error) {
				return &autofetch.Capture{ID: id}, nil
			},
		}
		svc := afslog.NewLoggingCaptureService(inner, debugLogger(&buf))

		captures, err := svc.FindCaptures(context.Background(), autofetch.CaptureFilter{})
		require.NoError(t, err)
		assert.Len(t, captures, 2)
		assert.Contains(t, buf.String(), "count=2")

		c, err := svc.FindCaptureByID(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "x", c.ID)
	})
}
