package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fwojciec/autofetch"
	afhttp "github.com/fwojciec/autofetch/http"
	"github.com/fwojciec/autofetch/scan"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds how long in-flight relay requests may take to
// finish once the command is interrupted.
const shutdownTimeout = 5 * time.Second

// Run executes the relay command: the worker runs here and subordinate
// frames post their messages over HTTP.
func (c *RelayCmd) Run(deps *Dependencies) error {
	ch, err := scan.NewChannel(deps.Ctx, scan.ChannelConfig{
		Posture:         autofetch.PostureTop,
		Fetcher:         deps.Fetcher,
		WorkerPrefixURL: c.WorkerURL,
		NewWorker:       deps.NewWorker,
		Logger:          deps.logger(),
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autofetch.ErrorMessage(err))
		return err
	}
	defer ch.Terminate()

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           c.Handler(deps, deps.wrapChannel(ch)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Fprintf(deps.Stdout, "Relay listening on %s\n", c.Addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving relay: %w", err)
		}
		return nil
	case <-deps.Ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Handler builds the relay HTTP handler delivering into ch.
func (c *RelayCmd) Handler(deps *Dependencies, ch autofetch.WorkerChannel) http.Handler {
	opts := []afhttp.RelayOption{
		afhttp.WithAllowedOrigins(c.Origins...),
		afhttp.WithRelayLogger(deps.logger()),
	}
	if deps.Gatherer != nil {
		opts = append(opts, afhttp.WithMetricsHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	return afhttp.NewRelayServer(ch, opts...)
}
