package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/autofetch"
)

// Default scheduler intervals.
const (
	DefaultCheckInterval     = 15 * time.Second
	DefaultReadyPollInterval = 1 * time.Second
)

// State is the lifecycle state of a Scheduler.
type State int

// Scheduler states.
const (
	StateIdle State = iota
	StateWaitingForReady
	StateSteady
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForReady:
		return "waiting-for-ready"
	case StateSteady:
		return "steady"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

// NewTimeTicker is the TickerFunc backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets the steady-state pass interval.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.checkInterval = d
	}
}

// WithReadyPollInterval sets how often readiness is polled before the
// first pass.
func WithReadyPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.readyPollInterval = d
	}
}

// WithTickerFunc replaces the ticker source.
func WithTickerFunc(fn TickerFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.newTicker = fn
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler runs a pass once the document is complete and then every
// check interval until paused or terminated.
//
// The periodic tick and the readiness poll are separate: Pause and Resume
// only affect the periodic tick.
type Scheduler struct {
	doc               autofetch.Document
	pass              func(ctx context.Context)
	checkInterval     time.Duration
	readyPollInterval time.Duration
	newTicker         TickerFunc
	logger            *slog.Logger

	mu        sync.Mutex
	state     State
	ctx       context.Context
	tick      Ticker
	tickDone  chan struct{}
	ready     Ticker
	readyDone chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler that runs pass over doc.
func NewScheduler(doc autofetch.Document, pass func(ctx context.Context), opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		doc:               doc,
		pass:              pass,
		checkInterval:     DefaultCheckInterval,
		readyPollInterval: DefaultReadyPollInterval,
		newTicker:         NewTimeTicker,
		logger:            slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the periodic tick is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick != nil
}

// Start begins scheduling. If the document is already complete, one pass
// runs before Start returns and periodic ticking begins. Otherwise
// readiness is polled in the background. Only the first call has effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateWaitingForReady
	s.ctx = ctx
	s.mu.Unlock()

	if s.isComplete(ctx) {
		s.becomeSteady(ctx)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaitingForReady {
		return
	}
	t := s.newTicker(s.readyPollInterval)
	done := make(chan struct{})
	s.ready, s.readyDone = t, done
	s.wg.Add(1)
	go s.pollReady(ctx, t, done)
}

func (s *Scheduler) pollReady(ctx context.Context, t Ticker, done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.ready == t {
				s.ready.Stop()
				s.ready, s.readyDone = nil, nil
			}
			s.mu.Unlock()
			return
		case <-done:
			return
		case <-t.C():
			if !s.isComplete(ctx) {
				continue
			}
			s.mu.Lock()
			if s.ready == t {
				s.ready.Stop()
				s.ready, s.readyDone = nil, nil
			}
			s.mu.Unlock()
			s.becomeSteady(ctx)
			return
		}
	}
}

// becomeSteady runs the first pass and starts the periodic tick.
func (s *Scheduler) becomeSteady(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateWaitingForReady {
		s.mu.Unlock()
		return
	}
	s.state = StateSteady
	s.mu.Unlock()

	s.logger.Debug("document complete, starting passes")
	s.pass(ctx)
	s.Resume()
}

func (s *Scheduler) isComplete(ctx context.Context) bool {
	state, err := s.doc.ReadyState(ctx)
	if err != nil {
		s.logger.Warn("ready state check failed", "err", err)
		return false
	}
	return state == autofetch.ReadyComplete
}

// Resume starts the periodic tick. It is a no-op before the first pass,
// after Terminate or cancellation of the Start context, and while a tick
// is already running.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSteady || s.tick != nil || s.ctx.Err() != nil {
		return
	}
	t := s.newTicker(s.checkInterval)
	done := make(chan struct{})
	s.tick, s.tickDone = t, done
	s.wg.Add(1)
	go s.run(s.ctx, t, done)
}

// Pause stops the periodic tick. Calling it while paused has no effect.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickLocked()
}

// Terminate stops the periodic tick and any readiness poll, and waits for
// a pass in progress to return. The scheduler cannot be restarted.
func (s *Scheduler) Terminate() {
	s.mu.Lock()
	s.stopTickLocked()
	if s.ready != nil {
		s.ready.Stop()
		close(s.readyDone)
		s.ready, s.readyDone = nil, nil
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) stopTickLocked() {
	if s.tick == nil {
		return
	}
	s.tick.Stop()
	close(s.tickDone)
	s.tick, s.tickDone = nil, nil
}

func (s *Scheduler) run(ctx context.Context, t Ticker, done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.tick == t {
				s.stopTickLocked()
			}
			s.mu.Unlock()
			return
		case <-done:
			return
		case <-t.C():
			// A tick may race with Pause.
			select {
			case <-done:
				return
			default:
			}
			s.pass(ctx)
		}
	}
}
