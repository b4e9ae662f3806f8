package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/goquery"
	afhttp "github.com/fwojciec/autofetch/http"
	"github.com/fwojciec/autofetch/scan"
)

// Run executes the scan command: one pass over the served markup, then the
// worker drains before the command reports what it captured. With a relay
// URL the page is scanned as a subordinate frame and its messages are
// posted to the relay.
func (c *ScanCmd) Run(deps *Dependencies) error {
	began := time.Now()

	af, err := scan.Start(deps.Ctx, scan.Config{
		Document:     goquery.NewDocument(c.URL, deps.Fetcher, deps.Parser),
		Channel:      c.channelConfig(deps),
		WrapChannel:  deps.wrapChannel,
		ProxyFetcher: deps.Fetcher,
		Parser:       deps.Parser,
		ProxyMagic:   c.ProxyMagic,
		Logger:       deps.logger(),
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}
	af.Finish()

	if c.RelayURL != "" {
		fmt.Fprintf(deps.Stdout, "Scanned %s: forwarded to %s\n", c.URL, c.RelayURL)
		return nil
	}

	captures, err := deps.Captures.FindCaptures(deps.Ctx, autofetch.CaptureFilter{Since: &began})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}

	var fetched, failed int
	for _, cp := range captures {
		if cp.Error != "" {
			failed++
			continue
		}
		fetched++
	}
	fmt.Fprintf(deps.Stdout, "Scanned %s: %d fetched, %d failed\n", c.URL, fetched, failed)
	return nil
}

func (c *ScanCmd) channelConfig(deps *Dependencies) scan.ChannelConfig {
	if c.RelayURL == "" {
		return scan.ChannelConfig{
			Posture:         autofetch.PostureTop,
			Fetcher:         deps.Fetcher,
			WorkerPrefixURL: c.WorkerURL,
			NewWorker:       deps.NewWorker,
		}
	}

	var opts []afhttp.PosterOption
	if u, err := url.Parse(c.URL); err == nil && u.Host != "" {
		opts = append(opts, afhttp.WithOrigin(u.Scheme+"://"+u.Host))
	}
	return scan.ChannelConfig{
		Posture:   autofetch.PostureSubordinate,
		Messenger: afhttp.NewFramePoster(c.RelayURL, opts...),
	}
}
