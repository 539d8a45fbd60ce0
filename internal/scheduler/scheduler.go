// Package scheduler provides the periodic ticker that finds due runs and
// hands them to the progression engine.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/outflow-crm/outflow/internal/engine"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/rs/zerolog"
)

// Scheduler errors.
var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
	ErrSchedulerNotRunning     = errors.New("scheduler not running")
)

// RunSource finds runs that are due for processing.
type RunSource interface {
	FindActiveDueBefore(ctx context.Context, ts time.Time, limit int) ([]*models.Run, error)
}

// RunProcessor advances a single due run.
type RunProcessor interface {
	ProcessRun(ctx context.Context, runID string) (engine.Outcome, error)
}

// Config contains scheduler configuration.
type Config struct {
	// TickInterval is how often the scheduler polls for due runs.
	// Default: 2 minutes.
	TickInterval time.Duration

	// DispatchTimeout bounds a single run's processing, including the
	// external action call. Default: 30 seconds.
	DispatchTimeout time.Duration

	// MaxConcurrentRuns limits how many runs are processed at once.
	// Default: 10.
	MaxConcurrentRuns int

	// BatchSize caps how many due runs one tick fetches. Default: 100.
	BatchSize int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:      2 * time.Minute,
		DispatchTimeout:   30 * time.Second,
		MaxConcurrentRuns: 10,
		BatchSize:         100,
	}
}

// ProcessEvent represents one run processed by the scheduler.
type ProcessEvent struct {
	// RunID is the run that was processed.
	RunID string

	// Outcome is what the engine did with the run.
	Outcome engine.Outcome

	// Error contains error details if processing failed.
	Error string

	// Timestamp is when processing started.
	Timestamp time.Time

	// Duration is how long processing took.
	Duration time.Duration
}

// Stats contains scheduler statistics.
type Stats struct {
	// Running indicates if the scheduler is active.
	Running bool

	// Paused indicates if the scheduler is paused.
	Paused bool

	// StartedAt is when the scheduler was started.
	StartedAt *time.Time

	// Ticks is the number of completed polling cycles.
	Ticks int64

	// ProcessedRuns is the total number of run transitions attempted.
	ProcessedRuns int64

	// ExecutedSteps counts transitions that executed or skipped a step.
	ExecutedSteps int64

	// Conflicts counts benign version-conflict outcomes.
	Conflicts int64

	// Failures counts transitions that returned an error or failed.
	Failures int64

	// LastTickAt is when the last tick completed.
	LastTickAt *time.Time
}

// Scheduler polls storage for due runs and dispatches them to the engine.
// Multiple scheduler instances may point at the same storage; the engine's
// compare-and-swap writes keep them from double-executing a run.
type Scheduler struct {
	config    Config
	runs      RunSource
	processor RunProcessor
	logger    zerolog.Logger

	// Runtime state
	mu          sync.RWMutex
	running     bool
	paused      bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	processSem  chan struct{}
	scheduleNow chan string

	// Stats
	stats     Stats
	statsMu   sync.RWMutex
	processCh chan ProcessEvent
}

// New creates a new Scheduler.
func New(config Config, runs RunSource, processor RunProcessor) *Scheduler {
	defaults := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = defaults.DispatchTimeout
	}
	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = defaults.MaxConcurrentRuns
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &Scheduler{
		config:      config,
		runs:        runs,
		processor:   processor,
		logger:      logging.Component("scheduler"),
		processSem:  make(chan struct{}, config.MaxConcurrentRuns),
		scheduleNow: make(chan string, 100),
		processCh:   make(chan ProcessEvent, 100),
	}
}

// Start begins the scheduler's background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.paused = false

	now := time.Now().UTC()
	s.statsMu.Lock()
	s.stats.Running = true
	s.stats.Paused = false
	s.stats.StartedAt = &now
	s.statsMu.Unlock()

	s.logger.Info().
		Dur("tick_interval", s.config.TickInterval).
		Int("max_concurrent", s.config.MaxConcurrentRuns).
		Msg("scheduler starting")

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop halts the scheduler and waits for in-flight processing to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}

	s.logger.Info().Msg("scheduler stopping")
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// Pause temporarily suspends polling without stopping the scheduler.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}
	if s.paused {
		return nil
	}

	s.paused = true
	s.statsMu.Lock()
	s.stats.Paused = true
	s.statsMu.Unlock()

	s.logger.Info().Msg("scheduler paused")
	return nil
}

// Resume resumes a paused scheduler.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}
	if !s.paused {
		return nil
	}

	s.paused = false
	s.statsMu.Lock()
	s.stats.Paused = false
	s.statsMu.Unlock()

	s.logger.Info().Msg("scheduler resumed")
	return nil
}

// ScheduleNow triggers an immediate processing attempt for a specific run,
// bypassing the tick interval.
func (s *Scheduler) ScheduleNow(runID string) error {
	s.mu.RLock()
	running := s.running
	paused := s.paused
	s.mu.RUnlock()

	if !running || paused {
		return ErrSchedulerNotRunning
	}

	select {
	case s.scheduleNow <- runID:
		s.logger.Debug().Str("run_id", runID).Msg("immediate processing triggered")
	default:
		// Channel full; the run will be picked up by the next tick.
		s.logger.Debug().Str("run_id", runID).Msg("schedule channel full, deferring to next tick")
	}
	return nil
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// ProcessEvents returns the channel of processing events.
func (s *Scheduler) ProcessEvents() <-chan ProcessEvent {
	return s.processCh
}

// runLoop is the main polling loop.
func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case runID := <-s.scheduleNow:
			if !s.isPaused() {
				s.tryProcess(runID)
			}

		case <-ticker.C:
			if !s.isPaused() {
				s.tick()
			}
		}
	}
}

func (s *Scheduler) isPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// tick performs one polling cycle.
func (s *Scheduler) tick() {
	now := time.Now().UTC()
	due, err := s.runs.FindActiveDueBefore(s.ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query due runs")
		return
	}

	for _, run := range due {
		s.tryProcess(run.ID)
	}

	s.statsMu.Lock()
	s.stats.Ticks++
	tickDone := time.Now().UTC()
	s.stats.LastTickAt = &tickDone
	s.statsMu.Unlock()
}

// tryProcess dispatches one run to the engine on a bounded worker.
func (s *Scheduler) tryProcess(runID string) {
	select {
	case s.processSem <- struct{}{}:
	default:
		// Max concurrent processing reached; the run stays due and the
		// next tick picks it up.
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.processSem }()

		s.processRun(runID)
	}()
}

// processRun invokes the engine for one run. A single run's failure never
// aborts the tick it came from.
func (s *Scheduler) processRun(runID string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.DispatchTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := s.processor.ProcessRun(ctx, runID)

	event := ProcessEvent{
		RunID:     runID,
		Outcome:   outcome,
		Timestamp: start.UTC(),
		Duration:  time.Since(start),
	}
	if err != nil {
		event.Error = err.Error()
		s.logger.Error().
			Err(err).
			Str("run_id", runID).
			Str("outcome", string(outcome)).
			Msg("run processing failed")
	} else {
		s.logger.Debug().
			Str("run_id", runID).
			Str("outcome", string(outcome)).
			Dur("duration", event.Duration).
			Msg("run processed")
	}

	s.recordProcess(event)
}

func (s *Scheduler) recordProcess(event ProcessEvent) {
	s.statsMu.Lock()
	s.stats.ProcessedRuns++
	switch {
	case event.Error != "" || event.Outcome == engine.OutcomeFailed:
		s.stats.Failures++
	case event.Outcome == engine.OutcomeConflict:
		s.stats.Conflicts++
	case event.Outcome == engine.OutcomeExecuted,
		event.Outcome == engine.OutcomeSkipped,
		event.Outcome == engine.OutcomeCompleted:
		s.stats.ExecutedSteps++
	}
	s.statsMu.Unlock()

	select {
	case s.processCh <- event:
	default:
		// Channel full, drop event.
	}
}
