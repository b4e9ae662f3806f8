package worker

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fwojciec/autofetch"
)

// Definition defaults.
const (
	DefaultConcurrency  = 4
	DefaultRPS          = 2.0
	DefaultQueueDepth   = 256
	DefaultExpectedURLs = 10000
	DefaultFPRate       = 0.001
)

// Definition is the worker configuration served at the worker prefix URL.
type Definition struct {
	// Prefix is prepended to every fetched URL. Empty selects proxy mode,
	// where absolute URLs are fetched as they are.
	Prefix string `json:"prefix"`

	Concurrency  int     `json:"concurrency"`
	RPS          float64 `json:"rps"`
	QueueDepth   int     `json:"queueDepth"`
	ExpectedURLs uint    `json:"expectedURLs"`

	// Retries is the number of retries after a failed fetch, with delays
	// doubling from one second.
	Retries int `json:"retries"`
}

// ParseDefinition decodes definition text and fills in defaults.
func ParseDefinition(text string) (*Definition, error) {
	var def Definition
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, autofetch.Errorf(autofetch.EINVALID, "invalid worker definition: %v", err)
	}

	if def.Concurrency < 0 || def.RPS < 0 || def.QueueDepth < 0 || def.Retries < 0 {
		return nil, autofetch.Errorf(autofetch.EINVALID, "worker definition values must not be negative")
	}
	if def.Concurrency == 0 {
		def.Concurrency = DefaultConcurrency
	}
	if def.RPS == 0 {
		def.RPS = DefaultRPS
	}
	if def.QueueDepth == 0 {
		def.QueueDepth = DefaultQueueDepth
	}
	if def.ExpectedURLs == 0 {
		def.ExpectedURLs = DefaultExpectedURLs
	}
	return &def, nil
}

// RetryDelays returns the backoff delays for the configured retries.
func (d *Definition) RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, d.Retries)
	delay := time.Second
	for range d.Retries {
		delays = append(delays, delay)
		delay *= 2
	}
	return delays
}
