package oracle

import (
	"context"
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker is the production TickerFactory.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Scheduler owns the single periodic sweep handle. Start replaces any
// running loop, so at most one is live at a time.
type Scheduler struct {
	mu        sync.Mutex
	newTicker TickerFactory
	run       func(ctx context.Context)
	base      context.Context
	cancel    context.CancelFunc
	interval  time.Duration
	starts    uint64
}

// NewScheduler creates a stopped scheduler that calls run on every tick.
func NewScheduler(run func(ctx context.Context), newTicker TickerFactory) *Scheduler {
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	return &Scheduler{
		newTicker: newTicker,
		run:       run,
		base:      context.Background(),
	}
}

// Attach sets the parent context for future loops. Loops end when it is done.
func (s *Scheduler) Attach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ctx
}

// Start cancels any running loop and starts a new one at interval.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.interval = interval
	s.starts++

	t := s.newTicker(interval)
	go s.loop(ctx, t)
}

// Stop cancels the running loop, if any. A sweep already in progress is not
// interrupted; it finishes its current provider call.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Running reports whether a loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Interval returns the interval of the most recent Start.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Starts returns how many times Start has been called.
func (s *Scheduler) Starts() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Scheduler) loop(ctx context.Context, t Ticker) {
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			// Re-check so a tick racing with Stop does not sweep.
			if ctx.Err() != nil {
				return
			}
			s.run(context.WithoutCancel(ctx))
		}
	}
}
