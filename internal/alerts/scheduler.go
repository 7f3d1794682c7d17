package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCycleInProgress is returned when a run is requested while the previous
// cycle is still executing.
var ErrCycleInProgress = errors.New("alerts: ingestion cycle already in progress")

// CycleRunner runs one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleSummary, error)
}

// SchedulerState is the owned scheduler-state record: created at process
// start, updated at cycle start and end.
type SchedulerState struct {
	LastRun     time.Time
	LastSummary CycleSummary
	LastError   string
	InProgress  bool
}

// Scheduler triggers ingestion cycles on a fixed interval, one at a time. A
// cycle that overruns the interval delays the next tick instead of running
// concurrently, so two cycles never race on the same trailing alert window.
type Scheduler struct {
	Runner   CycleRunner
	Interval time.Duration
	Logger   *slog.Logger
	// Observer, when set, receives every finished cycle. Used for metrics.
	Observer func(CycleSummary, error)

	mu    sync.Mutex
	state SchedulerState
}

// NewScheduler builds a scheduler with a default 5 minute interval.
func NewScheduler(runner CycleRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Runner: runner, Interval: interval, Logger: logger}
}

// Start runs cycles until the context is cancelled. The first cycle runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); errors.Is(err, ErrCycleInProgress) {
		s.Logger.Warn("cycle overran the interval, delaying next run")
	}
}

// RunOnce executes a single cycle unless one is already running. Cycle-level
// failures are reported and retried only on the next scheduled tick.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleSummary, error) {
	s.mu.Lock()
	if s.state.InProgress {
		s.mu.Unlock()
		return CycleSummary{}, ErrCycleInProgress
	}
	s.state.InProgress = true
	s.mu.Unlock()

	summary, err := s.Runner.RunCycle(ctx)

	s.mu.Lock()
	s.state.InProgress = false
	s.state.LastRun = summary.StartedAt
	s.state.LastSummary = summary
	s.state.LastError = ""
	if err != nil {
		s.state.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.Logger.Error("ingestion cycle failed",
			"candidates", summary.Candidates,
			"source_errors", len(summary.SourceErrors),
			"err", err)
	} else {
		s.Logger.Info("ingestion cycle finished",
			"candidates", summary.Candidates,
			"groups", summary.Groups,
			"created", summary.Created,
			"updated", summary.Updated,
			"skipped", summary.Skipped,
			"source_errors", len(summary.SourceErrors),
			"duration", summary.Duration)
	}

	if s.Observer != nil {
		s.Observer(summary, err)
	}
	return summary, err
}

// State returns a snapshot of the scheduler state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
