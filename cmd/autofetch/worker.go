package main

import (
	"log/slog"

	"github.com/fwojciec/autofetch"
	"github.com/fwojciec/autofetch/scan"
	"github.com/fwojciec/autofetch/worker"
)

// NewWorkerFactory returns a factory materializing worker definitions into
// workers that fetch with fetcher and record into captures.
func NewWorkerFactory(fetcher autofetch.Fetcher, captures autofetch.CaptureService, logger *slog.Logger) scan.WorkerFactory {
	return func(definition string) (scan.Worker, error) {
		def, err := worker.ParseDefinition(definition)
		if err != nil {
			return nil, err
		}
		return worker.New(def, fetcher, captures, logger), nil
	}
}
