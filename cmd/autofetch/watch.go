package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/autofetch"
	afprom "github.com/fwojciec/autofetch/prometheus"
	"github.com/fwojciec/autofetch/rod"
	"github.com/fwojciec/autofetch/scan"
	afslog "github.com/fwojciec/autofetch/slog"
	gorod "github.com/go-rod/rod"
)

// Run executes the watch command: the page is opened in Chrome and scanned
// every interval until the command is interrupted or Duration elapses.
func (c *WatchCmd) Run(deps *Dependencies) error {
	ctx := deps.Ctx
	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	opts := []rod.ManagerOption{rod.WithHeadless(!c.Headful)}
	if c.Proxy != "" {
		opts = append(opts, rod.WithProxy(c.Proxy))
	}
	manager, err := rod.NewBrowserManager(opts...)
	if err != nil {
		fmt.Fprintln(deps.Stderr, "Hint: Chrome or Chromium must be installed")
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer manager.Close()

	page, err := manager.OpenPage(ctx, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}
	defer page.Close()

	// Stylesheet refetches go through the page, like the page's own fetches.
	var proxyFetcher autofetch.Fetcher = afslog.NewLoggingFetcher(rod.NewFetcher(page), deps.logger())
	if deps.Metrics != nil {
		proxyFetcher = afprom.NewFetcher(proxyFetcher, deps.Metrics)
	}

	af, err := scan.Start(ctx, scan.Config{
		Document: rod.NewDocument(page),
		Channel: scan.ChannelConfig{
			Posture:         autofetch.PostureTop,
			Fetcher:         deps.Fetcher,
			WorkerPrefixURL: c.WorkerURL,
			NewWorker:       deps.NewWorker,
		},
		WrapChannel:   deps.wrapChannel,
		ProxyFetcher:  proxyFetcher,
		Parser:        rod.NewScratchParser(page),
		ProxyMagic:    c.ProxyMagic,
		CheckInterval: c.Interval,
		Logger:        deps.logger(),
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}
	defer af.Terminate()

	relay := rod.NewRelay(page, af, rod.WithAllowedOrigins(c.Origins...), rod.WithLogger(deps.logger()))
	if err := relay.Start(ctx); err != nil {
		return err
	}
	defer relay.Stop()

	frames := c.startFrames(ctx, deps, page)
	defer func() {
		for _, f := range frames {
			f.Terminate()
		}
	}()

	fmt.Fprintf(deps.Stdout, "Watching %s (interval %s, %d frames)\n", c.URL, c.Interval, len(frames))
	<-ctx.Done()
	return nil
}

// startFrames starts a subordinate scanner in every iframe present on the
// page. Their messages reach the top page's worker through the relay.
// Frames that cannot be entered are skipped.
func (c *WatchCmd) startFrames(ctx context.Context, deps *Dependencies, page *gorod.Page) []*scan.AutoFetcher {
	logger := deps.logger()
	iframes, err := page.Context(ctx).Elements("iframe")
	if err != nil {
		logger.Warn("listing frames failed", "err", err)
		return nil
	}

	var started []*scan.AutoFetcher
	for _, iframe := range iframes {
		frame, err := iframe.Frame()
		if err != nil {
			logger.Warn("entering frame failed", "err", err)
			continue
		}
		af, err := scan.Start(ctx, scan.Config{
			Document: rod.NewDocument(frame),
			Channel: scan.ChannelConfig{
				Posture:   autofetch.PostureSubordinate,
				Messenger: rod.NewFrameMessenger(frame),
			},
			WrapChannel: func(ch autofetch.WorkerChannel) autofetch.WorkerChannel {
				return afslog.NewLoggingChannel(ch, logger)
			},
			ProxyFetcher:  afslog.NewLoggingFetcher(rod.NewFetcher(frame), logger),
			Parser:        rod.NewScratchParser(frame),
			ProxyMagic:    c.ProxyMagic,
			CheckInterval: c.Interval,
			Logger:        logger,
		})
		if err != nil {
			logger.Warn("starting frame scanner failed", "err", err)
			continue
		}
		started = append(started, af)
	}
	return started
}
