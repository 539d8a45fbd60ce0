// Package engine implements the step progression state machine that drives
// a run from one step to the next.
//
// ProcessRun is invoked for runs that are active and due. Every write goes
// through the run repository's compare-and-swap, so overlapping ticks,
// multiple workers, and concurrent manual stops all resolve to exactly one
// winner; losers observe a version conflict and back off to the next tick.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/outflow-crm/outflow/internal/actions"
	"github.com/outflow-crm/outflow/internal/conditions"
	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/events"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/rs/zerolog"
)

// Engine errors.
var (
	ErrRunNotFound = errors.New("run not found")
)

// Outcome summarizes what ProcessRun did with a run.
type Outcome string

const (
	// OutcomeExecuted means the step's action was dispatched and the run
	// advanced.
	OutcomeExecuted Outcome = "executed"

	// OutcomeCompleted means the final step executed and the run finished.
	OutcomeCompleted Outcome = "completed"

	// OutcomeSkipped means the step was marked done without executing and
	// the run advanced.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeRescheduled means the due time moved forward; the step and
	// current position are unchanged.
	OutcomeRescheduled Outcome = "rescheduled"

	// OutcomeStopped means a stop condition matched or retries were
	// exhausted; the run is terminal.
	OutcomeStopped Outcome = "stopped"

	// OutcomeFailed means the action execution failed; the run stays
	// active with its prior due time and is retried on a later tick.
	OutcomeFailed Outcome = "failed"

	// OutcomeConflict means another writer won a version race. Benign.
	OutcomeConflict Outcome = "conflict"

	// OutcomeNotDue means the run was no longer active and due when read.
	OutcomeNotDue Outcome = "not_due"

	// OutcomeInFlight means another worker holds a live in-progress marker
	// for this run.
	OutcomeInFlight Outcome = "in_flight"
)

// Config contains engine tuning knobs.
type Config struct {
	// MaxAttempts caps execution attempts per step before the run is
	// stopped with reason execution_failed_exhausted.
	MaxAttempts int

	// PendingTimeout is how long an in-progress marker may stand before a
	// later tick treats the attempt as crashed and eligible for retry.
	// Action dispatch here is enqueue-style and safe to retry.
	PendingTimeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		PendingTimeout: 5 * time.Minute,
	}
}

// Engine drives run progression.
type Engine struct {
	runs       *db.RunRepository
	activities *db.ActivityRepository
	flags      *db.LeadFlagRepository
	audit      events.Repository
	executor   actions.Executor
	window     conditions.Window
	config     Config
	logger     zerolog.Logger

	// now is the clock; overridden in tests.
	now func() time.Time
}

// New creates an Engine.
func New(
	runs *db.RunRepository,
	activities *db.ActivityRepository,
	flags *db.LeadFlagRepository,
	audit events.Repository,
	executor actions.Executor,
	window conditions.Window,
	config Config,
) *Engine {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.PendingTimeout <= 0 {
		config.PendingTimeout = DefaultConfig().PendingTimeout
	}

	return &Engine{
		runs:       runs,
		activities: activities,
		flags:      flags,
		audit:      audit,
		executor:   executor,
		window:     window,
		config:     config,
		logger:     logging.Component("engine"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessRun runs one transition of the state machine for a due run.
// It is safe to call concurrently for the same run from multiple workers:
// at most one of them executes the step.
func (e *Engine) ProcessRun(ctx context.Context, runID string) (Outcome, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			return OutcomeNotDue, ErrRunNotFound
		}
		return OutcomeNotDue, err
	}

	now := e.now()
	if !run.Due(now) {
		return OutcomeNotDue, nil
	}

	// A live in-progress marker belongs to another worker. A stale one
	// means a crash between marking and finalizing: count the attempt as
	// failed and fall through to retry or exhaustion.
	if run.Pending != nil {
		if now.Sub(run.Pending.StartedAt) < e.config.PendingTimeout {
			return OutcomeInFlight, nil
		}
		e.logger.Warn().
			Str("run_id", run.ID).
			Int("step_order", run.Pending.StepOrder).
			Time("started_at", run.Pending.StartedAt).
			Msg("recovering stale in-progress marker")
		run.Pending = nil
		if run.AttemptCount >= e.config.MaxAttempts {
			return e.stopExhausted(ctx, run, now)
		}
		// Clear the marker before re-attempting so a concurrent worker
		// racing on the same stale marker loses the CAS.
		if err := e.runs.Update(ctx, run, run.Version); err != nil {
			return e.conflictOrError(err)
		}
	}

	hasReplied, err := e.activities.HasInboundSince(ctx, run.LeadID, run.EnrolledAt)
	if err != nil {
		return OutcomeFailed, err
	}
	leadFlags, err := e.flags.Get(ctx, run.LeadID)
	if err != nil {
		return OutcomeFailed, err
	}

	if matched, ok := conditions.EvaluateStop(run.StopConditions, leadFlags, hasReplied); ok {
		return e.stopRun(ctx, run, now, string(matched))
	}

	step, ok := run.CurrentStepDef()
	if !ok {
		// Defensive: a run past its last step should already be terminal.
		return e.completeRun(ctx, run, now)
	}

	decision := conditions.Evaluate(step, conditions.Input{
		Now:        now,
		HasReplied: hasReplied,
		Window:     e.window,
	})

	switch decision.Outcome {
	case conditions.OutcomeReschedule:
		due := decision.RescheduleTo.UTC()
		run.NextDueAt = &due
		if err := e.runs.Update(ctx, run, run.Version); err != nil {
			return e.conflictOrError(err)
		}
		if auditErr := events.LogStepRescheduled(ctx, e.audit, run, step, decision.Reason, due); auditErr != nil {
			e.logger.Warn().Err(auditErr).Str("run_id", run.ID).Msg("failed to record reschedule event")
		}
		e.logger.Debug().
			Str("run_id", run.ID).
			Int("step_order", step.Order).
			Time("next_due_at", due).
			Str("reason", decision.Reason).
			Msg("run rescheduled")
		return OutcomeRescheduled, nil

	case conditions.OutcomeSkip:
		run.StepsCompleted = append(run.StepsCompleted, models.StepCompletion{
			StepOrder:  step.Order,
			ExecutedAt: now,
			Skipped:    true,
			SkipReason: decision.Reason,
		})
		outcome, err := e.advance(ctx, run, now)
		if err != nil {
			return outcome, err
		}
		if outcome == OutcomeConflict {
			// Another writer won; the skip was not persisted.
			return OutcomeConflict, nil
		}
		if auditErr := events.LogStepSkipped(ctx, e.audit, run, step, decision.Reason); auditErr != nil {
			e.logger.Warn().Err(auditErr).Str("run_id", run.ID).Msg("failed to record skip event")
		}
		if outcome == OutcomeCompleted {
			return OutcomeCompleted, nil
		}
		return OutcomeSkipped, nil
	}

	return e.executeStep(ctx, run, step, now)
}

// executeStep performs the at-most-once action dispatch: mark in progress,
// commit, call out, re-read, finalize. The run row is never held locked
// across the external call.
func (e *Engine) executeStep(ctx context.Context, run *models.Run, step models.Step, now time.Time) (Outcome, error) {
	run.AttemptCount++
	run.Pending = &models.PendingStep{
		StepOrder: step.Order,
		StartedAt: now,
		Attempt:   run.AttemptCount,
	}
	if err := e.runs.Update(ctx, run, run.Version); err != nil {
		return e.conflictOrError(err)
	}

	result, execErr := e.executor.Execute(ctx, run.LeadID, step.ActionType, step.ActionConfig)

	// Re-acquire: another writer may have stopped the run while the
	// external call was in flight.
	fresh, err := e.runs.Get(ctx, run.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	if fresh.Terminal() {
		e.logger.Info().
			Str("run_id", run.ID).
			Str("status", string(fresh.Status)).
			Msg("run terminated while action was in flight")
		return OutcomeStopped, nil
	}
	if fresh.Pending == nil || fresh.Pending.Attempt != run.Pending.Attempt {
		// Someone else finalized this attempt.
		return OutcomeConflict, nil
	}

	finishedAt := e.now()
	fresh.Pending = nil

	if execErr != nil || !result.Success {
		detail := result.Error
		if execErr != nil {
			detail = execErr.Error()
		}
		e.logger.Error().
			Str("run_id", fresh.ID).
			Str("lead_id", fresh.LeadID).
			Int("step_order", step.Order).
			Int("attempt", fresh.AttemptCount).
			Str("error", detail).
			Msg("action execution failed")
		if auditErr := events.LogStepFailed(ctx, e.audit, fresh, step, fresh.AttemptCount, detail); auditErr != nil {
			e.logger.Warn().Err(auditErr).Str("run_id", fresh.ID).Msg("failed to record failure event")
		}

		if fresh.AttemptCount >= e.config.MaxAttempts {
			return e.stopExhausted(ctx, fresh, finishedAt)
		}
		// Keep the prior due time so the next tick retries the same step.
		if err := e.runs.Update(ctx, fresh, fresh.Version); err != nil {
			return e.conflictOrError(err)
		}
		return OutcomeFailed, nil
	}

	fresh.AttemptCount = 0
	fresh.StepsCompleted = append(fresh.StepsCompleted, models.StepCompletion{
		StepOrder:   step.Order,
		ExecutedAt:  finishedAt,
		ProviderRef: result.ProviderRef,
	})

	outcome, err := e.advance(ctx, fresh, finishedAt)
	if err != nil {
		return outcome, err
	}
	if outcome == OutcomeConflict {
		// Another writer won; the advance was not persisted.
		return OutcomeConflict, nil
	}
	if auditErr := events.LogStepExecuted(ctx, e.audit, fresh, step, result.ProviderRef); auditErr != nil {
		e.logger.Warn().Err(auditErr).Str("run_id", fresh.ID).Msg("failed to record execution event")
	}

	e.logger.Info().
		Str("run_id", fresh.ID).
		Str("lead_id", fresh.LeadID).
		Int("step_order", step.Order).
		Str("action_type", string(step.ActionType)).
		Str("outcome", string(outcome)).
		Msg("step executed")

	if outcome == OutcomeCompleted {
		return OutcomeCompleted, nil
	}
	return OutcomeExecuted, nil
}

// advance moves the run to the next step or completes it, computing the
// next due time with scheduling constraints already applied.
func (e *Engine) advance(ctx context.Context, run *models.Run, now time.Time) (Outcome, error) {
	run.CurrentStep++
	run.AttemptCount = 0

	if run.CurrentStep >= len(run.Steps) {
		return e.completeRun(ctx, run, now)
	}

	next := run.Steps[run.CurrentStep]
	due := conditions.NextDue(next, now, e.window).UTC()
	run.NextDueAt = &due

	if err := e.runs.Update(ctx, run, run.Version); err != nil {
		return e.conflictOrError(err)
	}
	return OutcomeExecuted, nil
}

func (e *Engine) completeRun(ctx context.Context, run *models.Run, now time.Time) (Outcome, error) {
	run.Status = models.RunStatusCompleted
	run.NextDueAt = nil
	run.Pending = nil
	completed := now
	run.CompletedAt = &completed

	if err := e.runs.Update(ctx, run, run.Version); err != nil {
		return e.conflictOrError(err)
	}

	if auditErr := events.LogRunTransition(ctx, e.audit, run, models.EventTypeRunCompleted, ""); auditErr != nil {
		e.logger.Warn().Err(auditErr).Str("run_id", run.ID).Msg("failed to record completion event")
	}
	e.logger.Info().
		Str("run_id", run.ID).
		Str("lead_id", run.LeadID).
		Msg("run completed")

	return OutcomeCompleted, nil
}

func (e *Engine) stopRun(ctx context.Context, run *models.Run, now time.Time, reason string) (Outcome, error) {
	run.Status = models.RunStatusStopped
	run.StoppedReason = reason
	run.NextDueAt = nil
	run.Pending = nil
	stopped := now
	run.CompletedAt = &stopped

	if err := e.runs.Update(ctx, run, run.Version); err != nil {
		return e.conflictOrError(err)
	}

	if auditErr := events.LogRunTransition(ctx, e.audit, run, models.EventTypeRunStopped, reason); auditErr != nil {
		e.logger.Warn().Err(auditErr).Str("run_id", run.ID).Msg("failed to record stop event")
	}
	e.logger.Info().
		Str("run_id", run.ID).
		Str("lead_id", run.LeadID).
		Str("reason", reason).
		Msg("run stopped")

	return OutcomeStopped, nil
}

func (e *Engine) stopExhausted(ctx context.Context, run *models.Run, now time.Time) (Outcome, error) {
	return e.stopRun(ctx, run, now, models.StoppedReasonExecutionFailedExhausted)
}

func (e *Engine) conflictOrError(err error) (Outcome, error) {
	if errors.Is(err, db.ErrVersionConflict) {
		return OutcomeConflict, nil
	}
	return OutcomeFailed, err
}
