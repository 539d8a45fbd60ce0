package models

import (
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusActive    RunStatus = "active"
	RunStatusPaused    RunStatus = "paused"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusCompleted RunStatus = "completed"
)

// Stopped reasons used by the engine itself. A stop-condition match records
// the condition name; manual stops record the caller-supplied reason.
const (
	StoppedReasonExecutionFailedExhausted = "execution_failed_exhausted"
	StoppedReasonManual                   = "manual"
)

// StepCompletion records one executed or skipped step of a run.
type StepCompletion struct {
	// StepOrder is the 1-based order of the completed step.
	StepOrder int `json:"step_order"`

	// ExecutedAt is when the step was executed or skipped.
	ExecutedAt time.Time `json:"executed_at"`

	// Skipped marks steps advanced past without executing their action.
	Skipped bool `json:"skipped,omitempty"`

	// SkipReason records why a skipped step did not execute.
	SkipReason string `json:"skip_reason,omitempty"`

	// ProviderRef is the external reference returned by the action executor.
	ProviderRef string `json:"provider_ref,omitempty"`
}

// PendingStep marks a step whose action execution is in flight. It is
// persisted before calling out to the action executor so that a crash
// between marking and finalizing is detectable on a later tick.
type PendingStep struct {
	// StepOrder is the order of the step being executed.
	StepOrder int `json:"step_order"`

	// StartedAt is when the execution attempt began.
	StartedAt time.Time `json:"started_at"`

	// Attempt is the 1-based attempt number for this step.
	Attempt int `json:"attempt"`
}

// Run is one lead's progress through one sequence. The step list is
// snapshotted at enrollment so later edits to the sequence definition never
// change an in-flight run.
type Run struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`

	// LeadID is the enrolled lead. Lead records are owned externally.
	LeadID string `json:"lead_id"`

	// SequenceID is the sequence this run was enrolled into.
	SequenceID string `json:"sequence_id"`

	// CurrentStep is the 0-based index into Steps of the next step to
	// execute. It only increases while the run is active.
	CurrentStep int `json:"current_step"`

	// Status is the run's lifecycle state.
	Status RunStatus `json:"status"`

	// NextDueAt is when the current step becomes eligible for execution.
	// Nil once the run is terminal.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// Steps is the step list snapshotted at enrollment time.
	Steps []Step `json:"steps"`

	// StopConditions is the sequence's stop-condition set, snapshotted at
	// enrollment time alongside the steps.
	StopConditions []StopCondition `json:"stop_conditions,omitempty"`

	// StepsCompleted records executed and skipped steps in order.
	StepsCompleted []StepCompletion `json:"steps_completed,omitempty"`

	// Pending marks an in-flight action execution, nil otherwise.
	Pending *PendingStep `json:"pending,omitempty"`

	// AttemptCount counts failed execution attempts of the current step.
	AttemptCount int `json:"attempt_count,omitempty"`

	// StoppedReason records why a stopped run was terminated.
	StoppedReason string `json:"stopped_reason,omitempty"`

	// EnrolledAt is when the run was created.
	EnrolledAt time.Time `json:"enrolled_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Version is the optimistic concurrency token. Every successful update
	// increments it; writers must present the version they read.
	Version int `json:"version"`

	// UpdatedAt is when the run row was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the run is in a terminal state.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusStopped || r.Status == RunStatusCompleted
}

// Due reports whether the run is active and its due time has passed.
func (r *Run) Due(now time.Time) bool {
	return r.Status == RunStatusActive && r.NextDueAt != nil && !r.NextDueAt.After(now)
}

// CurrentStepDef returns the step definition at CurrentStep.
func (r *Run) CurrentStepDef() (Step, bool) {
	if r.CurrentStep < 0 || r.CurrentStep >= len(r.Steps) {
		return Step{}, false
	}
	return r.Steps[r.CurrentStep], true
}

// Validate checks required fields of the run.
func (r *Run) Validate() error {
	validation := &ValidationErrors{}
	if r.LeadID == "" {
		validation.AddMessage("lead_id", "lead_id is required")
	}
	if r.SequenceID == "" {
		validation.AddMessage("sequence_id", "sequence_id is required")
	}
	if len(r.Steps) == 0 {
		validation.AddMessage("steps", "step snapshot is required")
	}
	if r.CurrentStep < 0 {
		validation.AddMessage("current_step", "current_step must be non-negative")
	}
	switch r.Status {
	case RunStatusActive, RunStatusPaused, RunStatusStopped, RunStatusCompleted:
	default:
		validation.AddMessage("status", "unknown status: "+string(r.Status))
	}
	return validation.Err()
}
