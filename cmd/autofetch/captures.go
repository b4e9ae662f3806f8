package main

import (
	"fmt"
	"io"

	"github.com/fwojciec/autofetch"
)

// Run executes the captures command.
func (c *CapturesCmd) Run(deps *Dependencies) error {
	if c.ID != "" {
		capture, err := deps.Captures.FindCaptureByID(deps.Ctx, c.ID)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
			return err
		}
		printCapture(deps.Stdout, capture)
		return nil
	}

	filter := autofetch.CaptureFilter{Limit: c.Limit}
	if c.URL != "" {
		filter.URL = &c.URL
	}
	if c.Source != "" {
		switch c.Source {
		case autofetch.SourceSrcset, autofetch.SourceSrc, autofetch.SourceMedia, autofetch.SourceFetchAll:
		default:
			fmt.Fprintf(deps.Stderr, "error: unknown source %q\n", c.Source)
			return autofetch.Errorf(autofetch.EINVALID, "unknown source %q", c.Source)
		}
		filter.Source = &c.Source
	}
	if c.Failed {
		failed := true
		filter.Failed = &failed
	}

	captures, err := deps.Captures.FindCaptures(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}

	if len(captures) == 0 {
		fmt.Fprintln(deps.Stdout, "No captures found. Use 'autofetch scan' to record some.")
		return nil
	}

	for _, capture := range captures {
		printCapture(deps.Stdout, capture)
	}
	return nil
}

func printCapture(w io.Writer, c *autofetch.Capture) {
	status := fmt.Sprintf("%d bytes", c.Bytes)
	if c.Error != "" {
		status = "error: " + c.Error
	}
	fmt.Fprintf(w, "%s  %s  %-9s  %s  %s\n", c.ID, c.FetchedAt.Format("2006-01-02 15:04:05"), c.Source, c.URL, status)
}
