// Package poller runs periodic fetches as explicit subscriptions. A subscription
// fetches immediately on Start and then once per interval until Stop. Every parameter
// change opens a new generation: requests of older generations are cancelled and any
// response they still produce is discarded.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Result is one completed fetch that was still current when it finished
type Result[T any] struct {
	Data        T
	Err         error
	Generation  uint64
	Seq         uint64
	IssuedAt    time.Time
	CompletedAt time.Time
}

// Config describes a subscription.
//
// Interval 0 means the subscription fetches once per Start, SetParams or Refresh and
// never on a timer. Ready reports whether a parameter is complete enough to fetch with;
// while it returns false the subscription stays idle. OnResult is called serially, in
// issue order, and must not call Stop or SetParams on its own subscription. OnReset
// runs on every parameter change, after the last result of the old generation and
// before the first fetch of the new one.
type Config[P comparable, T any] struct {
	Name     string
	Interval time.Duration
	Param    P
	Ready    func(P) bool
	Fetch    func(ctx context.Context, p P) (T, error)
	OnResult func(Result[T])
	OnReset  func(P)
}

// Subscription is a periodic fetch with a Start/Stop lifecycle
type Subscription[P comparable, T any] struct {
	id  string
	cfg Config[P, T]

	mu          sync.Mutex
	param       P
	running     bool
	gen         uint64
	seq         uint64
	lastApplied uint64
	runCtx      context.Context
	runCancel   context.CancelFunc
	genCtx      context.Context
	genCancel   context.CancelFunc
	done        chan struct{}
	inflight    sync.WaitGroup

	// serializes the check-and-apply step so OnResult sees results in order
	applyMu sync.Mutex

	ticks     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	discarded atomic.Int64
}

// New creates a stopped subscription
func New[P comparable, T any](cfg Config[P, T]) *Subscription[P, T] {
	return &Subscription[P, T]{
		id:    uuid.NewString(),
		cfg:   cfg,
		param: cfg.Param,
	}
}

// ID returns the subscription's unique id
func (s *Subscription[P, T]) ID() string { return s.id }

// Name returns the configured name
func (s *Subscription[P, T]) Name() string { return s.cfg.Name }

// Start begins polling. The first fetch is issued immediately. Calling Start on a
// running subscription does nothing.
func (s *Subscription[P, T]) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.gen++
	s.lastApplied = 0
	s.genCtx, s.genCancel = context.WithCancel(s.runCtx)
	s.done = make(chan struct{})
	runCtx, done := s.runCtx, s.done
	s.mu.Unlock()

	slog.Debug("subscription started", "subscription", s.cfg.Name, "interval", s.cfg.Interval)
	go s.run(runCtx, done)
}

func (s *Subscription[P, T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick()
	if s.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-ctx.Done():
			return
		}
	}
}

// Stop clears the timer, cancels every in-flight request and waits for them to
// return. No result is delivered after Stop returns. Stop is idempotent.
func (s *Subscription[P, T]) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.runCancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.inflight.Wait()
	slog.Debug("subscription stopped", "subscription", s.cfg.Name)
}

// Running reports whether the subscription is started
func (s *Subscription[P, T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Param returns the current parameter
func (s *Subscription[P, T]) Param() P {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.param
}

// SetParams switches the parameter and opens a new generation. Requests of the old
// generation are cancelled and a running subscription fetches immediately with the
// new parameter. Setting the current parameter again does nothing. SetParams returns
// only after any result of the old generation being delivered has finished.
func (s *Subscription[P, T]) SetParams(p P) {
	s.mu.Lock()
	if p == s.param {
		s.mu.Unlock()
		return
	}
	s.param = p
	s.gen++
	s.lastApplied = 0
	if s.genCancel != nil {
		s.genCancel()
	}
	running := s.running
	if running {
		s.genCtx, s.genCancel = context.WithCancel(s.runCtx)
	}
	s.mu.Unlock()

	s.applyMu.Lock()
	if s.cfg.OnReset != nil {
		s.cfg.OnReset(p)
	}
	s.applyMu.Unlock()

	if running {
		s.tick()
	}
}

// Refresh issues one extra fetch right away. It does nothing while stopped.
func (s *Subscription[P, T]) Refresh() {
	s.tick()
}

func (s *Subscription[P, T]) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	p := s.param
	if s.cfg.Ready != nil && !s.cfg.Ready(p) {
		s.mu.Unlock()
		return
	}
	s.seq++
	gen, seq, ctx := s.gen, s.seq, s.genCtx
	s.inflight.Add(1)
	s.mu.Unlock()

	s.ticks.Add(1)
	go s.fetch(ctx, p, gen, seq)
}

func (s *Subscription[P, T]) fetch(ctx context.Context, p P, gen, seq uint64) {
	defer s.inflight.Done()

	issued := time.Now()
	data, err := s.cfg.Fetch(ctx, p)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	current := s.running && gen == s.gen && seq > s.lastApplied
	if current && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		current = false
	}
	if current {
		s.lastApplied = seq
	}
	s.mu.Unlock()

	if !current {
		s.discarded.Add(1)
		slog.Debug("discarding stale response", "subscription", s.cfg.Name, "generation", gen, "seq", seq)
		return
	}

	if err != nil {
		s.failures.Add(1)
	} else {
		s.successes.Add(1)
	}

	if s.cfg.OnResult != nil {
		s.cfg.OnResult(Result[T]{
			Data:        data,
			Err:         err,
			Generation:  gen,
			Seq:         seq,
			IssuedAt:    issued,
			CompletedAt: time.Now(),
		})
	}
}

// Stats returns the subscription counters
func (s *Subscription[P, T]) Stats() Stats {
	s.mu.Lock()
	running, gen := s.running, s.gen
	s.mu.Unlock()

	return Stats{
		ID:         s.id,
		Name:       s.cfg.Name,
		Interval:   s.cfg.Interval.String(),
		Running:    running,
		Generation: gen,
		Ticks:      s.ticks.Load(),
		Successes:  s.successes.Load(),
		Failures:   s.failures.Load(),
		Discarded:  s.discarded.Load(),
	}
}
