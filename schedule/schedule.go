// Package schedule runs background triggers: periodic check-ins that enter
// the orchestrator as synthetic user turns, and the idle-session sweep for
// hybrid conversations. The chat path stays fast because this work happens
// off to the side.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/peakform/coachcore/coach"
	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/logging"
	"github.com/peakform/coachcore/persona"
	"github.com/peakform/coachcore/store"
)

// TurnRunner is the slice of the orchestrator the scheduler needs.
type TurnRunner interface {
	RunTurn(ctx context.Context, req coach.TurnRequest) (coach.TurnResult, error)
}

// Trigger is a recurring synthetic turn, e.g. a morning check-in.
type Trigger struct {
	Name        string
	SessionID   string
	UserID      string
	Prompt      string
	Interval    time.Duration
	Interaction core.InteractionType
	Persona     persona.Config
}

// Options tunes the scheduler loop.
type Options struct {
	// Tick is the loop granularity; trigger intervals are checked on each
	// tick. 0 => 1s.
	Tick time.Duration
	// SweepEvery bounds how often idle hybrid sessions are expired.
	// 0 => 1m.
	SweepEvery time.Duration
}

// Scheduler fires triggers until stopped. Start/Stop are safe to call once
// each; trigger turns run concurrently with live traffic and rely on the
// orchestrator's per-session serialization.
type Scheduler struct {
	runner   TurnRunner
	sessions *store.Store // nil disables the idle sweep
	logger   logging.Logger
	opts     Options

	mu       sync.Mutex
	triggers []Trigger
	lastRun  map[string]time.Time
	running  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a scheduler. sessions may be nil when no hybrid sweep is needed.
func New(runner TurnRunner, sessions *store.Store, opts Options, logger logging.Logger) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = time.Minute
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Scheduler{
		runner:   runner,
		sessions: sessions,
		logger:   logger,
		opts:     opts,
		lastRun:  make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
}

// Add registers a trigger. Triggers added after Start are picked up on the
// next tick.
func (s *Scheduler) Add(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

// Start launches the loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the loop and waits for in-flight trigger turns to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	lastSweep := time.Now()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
			if s.sessions != nil && now.Sub(lastSweep) >= s.opts.SweepEvery {
				lastSweep = now
				if n := s.sessions.ExpireIdle(ctx, now); n > 0 {
					s.logger.Info("schedule.sweep.expired", "sessions", n)
				}
			}
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []Trigger
	for _, t := range s.triggers {
		last, seen := s.lastRun[t.Name]
		if !seen || now.Sub(last) >= t.Interval {
			s.lastRun[t.Name] = now
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		trigger := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			res, err := s.runner.RunTurn(ctx, coach.TurnRequest{
				SessionID:   trigger.SessionID,
				UserID:      trigger.UserID,
				Input:       trigger.Prompt,
				Interaction: trigger.Interaction,
				Persona:     trigger.Persona,
				Scheduled:   true,
			})
			if err != nil {
				s.logger.Warn("schedule.trigger.failed", "trigger", trigger.Name, "error", err)
				return
			}
			s.logger.Info("schedule.trigger.done", "trigger", trigger.Name, "degraded", res.Degraded)
		}()
	}
}

// LastRun reports when a trigger last fired (zero time if never).
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun[name]
}
