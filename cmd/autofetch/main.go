package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/douceur"
	afhttp "github.com/fwojciec/autofetch/http"
	afprom "github.com/fwojciec/autofetch/prometheus"
	afslog "github.com/fwojciec/autofetch/slog"
	"github.com/fwojciec/autofetch/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path. Set before calling Run().
	DBPath string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Registry collects the metrics of one run.
	Registry *prometheus.Registry
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath:   defaultDBPath(),
		Registry: prometheus.NewRegistry(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("autofetch"),
		kong.Description("Discover and archive lazily loaded page resources"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'autofetch --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	m.DB = sqlite.NewDB(m.DBPath)
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: Set AUTOFETCH_DB to use a different database path\n")
		return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
	}
	defer m.Close()

	metrics, err := afprom.NewMetrics(m.Registry)
	if err != nil {
		return err
	}
	deps.Metrics = metrics
	deps.Gatherer = m.Registry
	deps.Captures = afslog.NewLoggingCaptureService(sqlite.NewCaptureService(m.DB), deps.Logger)
	deps.Parser = douceur.NewParser()

	var fetcher autofetch.Fetcher = afhttp.NewFetcher(afhttp.WithTimeout(cli.Timeout))
	fetcher = afprom.NewFetcher(afslog.NewLoggingFetcher(fetcher, deps.Logger), metrics)
	defer fetcher.Close()
	deps.Fetcher = fetcher
	deps.NewWorker = NewWorkerFactory(fetcher, deps.Captures, deps.Logger)

	return kongCtx.Run(deps)
}

func defaultDBPath() string {
	if path := os.Getenv("AUTOFETCH_DB"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "autofetch.db"
	}
	dir := filepath.Join(home, ".autofetch")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "autofetch.db")
}
