package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/autofetch"
	afprom "github.com/fwojciec/autofetch/prometheus"
	"github.com/fwojciec/autofetch/scan"
	afslog "github.com/fwojciec/autofetch/slog"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Fetcher   autofetch.Fetcher
	Parser    autofetch.StyleParser
	Captures  autofetch.CaptureService
	NewWorker scan.WorkerFactory
	Metrics   *afprom.Metrics
	Gatherer  prometheus.Gatherer
}

// wrapChannel decorates a worker channel with logging and, when
// configured, metrics.
func (d *Dependencies) wrapChannel(ch autofetch.WorkerChannel) autofetch.WorkerChannel {
	if d.Logger != nil {
		ch = afslog.NewLoggingChannel(ch, d.Logger)
	}
	if d.Metrics != nil {
		ch = afprom.NewChannel(ch, d.Metrics)
	}
	return ch
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose bool          `short:"v" help:"Enable debug logging"`
	Timeout time.Duration `short:"t" default:"10s" help:"HTTP fetch timeout"`

	Scan     ScanCmd     `cmd:"" help:"Scan a page once and fetch what it lazily references"`
	Watch    WatchCmd    `cmd:"" help:"Keep scanning a page in a live browser"`
	Relay    RelayCmd    `cmd:"" help:"Serve the top-frame relay for subordinate frames"`
	Captures CapturesCmd `cmd:"" help:"List recorded captures"`
}

// WorkerFlags configure the worker bootstrap shared by several commands.
type WorkerFlags struct {
	WorkerURL  string `name:"worker-url" env:"AUTOFETCH_WORKER_URL" help:"URL of the worker definition"`
	ProxyMagic string `name:"proxy-magic" env:"AUTOFETCH_PROXY_MAGIC" help:"Archive proxy host used for cross-origin stylesheet refetches"`
}

// ScanCmd is the "scan" subcommand.
type ScanCmd struct {
	URL         string `arg:"" help:"Page URL"`
	WorkerFlags `embed:""`
	RelayURL    string `name:"relay-url" env:"AUTOFETCH_RELAY_URL" help:"Forward discoveries to a top-frame relay instead of running a worker"`
}

// Validate requires a worker definition unless discoveries are relayed.
func (c *ScanCmd) Validate() error {
	if c.WorkerURL == "" && c.RelayURL == "" {
		return fmt.Errorf("one of --worker-url or --relay-url is required")
	}
	return nil
}

// WatchCmd is the "watch" subcommand.
type WatchCmd struct {
	URL         string `arg:"" help:"Page URL"`
	WorkerFlags `embed:""`
	Interval time.Duration `short:"i" default:"15s" help:"Time between scans"`
	Duration time.Duration `short:"d" help:"Stop after this long (0 runs until interrupted)"`
	Proxy    string        `help:"Route browser traffic through this host:port"`
	Headful  bool          `help:"Show the browser window"`
	Origins  []string      `name:"allow-origin" help:"Frame origins allowed to relay messages (repeatable)"`
}

// Validate requires a worker definition.
func (c *WatchCmd) Validate() error {
	if c.WorkerURL == "" {
		return fmt.Errorf("--worker-url is required")
	}
	return nil
}

// RelayCmd is the "relay" subcommand.
type RelayCmd struct {
	Addr      string   `default:":8080" help:"Listen address"`
	WorkerURL string   `name:"worker-url" required:"" env:"AUTOFETCH_WORKER_URL" help:"URL of the worker definition"`
	Origins   []string `name:"allow-origin" help:"Origins allowed to relay messages (repeatable)"`
}

// CapturesCmd is the "captures" subcommand.
type CapturesCmd struct {
	ID     string `arg:"" optional:"" help:"Show a single capture"`
	URL    string `help:"Only captures of this URL"`
	Source string `help:"Only captures from this source (srcset, src, media, fetch-all)"`
	Failed bool   `help:"Only failed captures"`
	Limit  int    `short:"n" default:"50" help:"Maximum captures to list"`
}
