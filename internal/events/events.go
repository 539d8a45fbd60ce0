// Package events provides helper functions for recording Outflow audit
// events. Audit writes are best-effort: callers log failures and move on,
// they never block run progression.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

// LogEnrolled records an enrollment. Every run gets a run.enrolled event;
// auto-matched enrollments additionally get a lead.auto_enrolled event on
// the lead entity so lead-scoped audit queries surface them.
func LogEnrolled(ctx context.Context, repo Repository, run *models.Run, source string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	var due time.Time
	if run.NextDueAt != nil {
		due = *run.NextDueAt
	}
	payload, err := json.Marshal(models.EnrolledPayload{
		RunID:      run.ID,
		LeadID:     run.LeadID,
		SequenceID: run.SequenceID,
		NextDueAt:  due,
		Source:     source,
	})
	if err != nil {
		return fmt.Errorf("marshal enrolled payload: %w", err)
	}

	if err := repo.Append(ctx, &models.Event{
		Type:       models.EventTypeRunEnrolled,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	}); err != nil {
		return err
	}

	if source != "auto" {
		return nil
	}
	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeLeadAutoEnrolled,
		EntityType: models.EntityTypeLead,
		EntityID:   run.LeadID,
		Payload:    payload,
	})
}

// LogRunTransition records a pause, resume, stop, or completion.
func LogRunTransition(ctx context.Context, repo Repository, run *models.Run, eventType models.EventType, reason string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.RunStoppedPayload{
		RunID:  run.ID,
		LeadID: run.LeadID,
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("marshal transition payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	})
}

// LogStepExecuted records a successful step execution.
func LogStepExecuted(ctx context.Context, repo Repository, run *models.Run, step models.Step, providerRef string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.StepExecutedPayload{
		RunID:       run.ID,
		LeadID:      run.LeadID,
		StepOrder:   step.Order,
		ActionType:  step.ActionType,
		ProviderRef: providerRef,
	})
	if err != nil {
		return fmt.Errorf("marshal step executed payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeStepExecuted,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	})
}

// LogStepSkipped records a step advanced past without executing.
func LogStepSkipped(ctx context.Context, repo Repository, run *models.Run, step models.Step, reason string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.StepSkippedPayload{
		RunID:     run.ID,
		LeadID:    run.LeadID,
		StepOrder: step.Order,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("marshal step skipped payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeStepSkipped,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	})
}

// LogStepRescheduled records a due time pushed forward by a scheduling
// constraint. The step and current position are unchanged.
func LogStepRescheduled(ctx context.Context, repo Repository, run *models.Run, step models.Step, reason string, to time.Time) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.StepRescheduledPayload{
		RunID:     run.ID,
		LeadID:    run.LeadID,
		StepOrder: step.Order,
		Reason:    reason,
		NextDueAt: to,
	})
	if err != nil {
		return fmt.Errorf("marshal step rescheduled payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeStepRescheduled,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	})
}

// LogStepFailed records a failed execution attempt.
func LogStepFailed(ctx context.Context, repo Repository, run *models.Run, step models.Step, attempt int, execErr string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.StepFailedPayload{
		RunID:     run.ID,
		LeadID:    run.LeadID,
		StepOrder: step.Order,
		Error:     execErr,
		Attempt:   attempt,
	})
	if err != nil {
		return fmt.Errorf("marshal step failed payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeStepFailed,
		EntityType: models.EntityTypeRun,
		EntityID:   run.ID,
		Payload:    payload,
	})
}

// LogActivityRecorded records a lead activity on the lead entity.
func LogActivityRecorded(ctx context.Context, repo Repository, activity *models.Activity) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.ActivityRecordedPayload{
		ActivityID: activity.ID,
		LeadID:     activity.LeadID,
		Type:       activity.Type,
		Direction:  activity.Direction,
	})
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeActivityRecorded,
		EntityType: models.EntityTypeLead,
		EntityID:   activity.LeadID,
		Payload:    payload,
	})
}

// LogSequenceChange records a sequence lifecycle event (imported,
// activated, deactivated).
func LogSequenceChange(ctx context.Context, repo Repository, seq *models.Sequence, eventType models.EventType) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.SequencePayload{
		SequenceID: seq.ID,
		Name:       seq.Name,
		Active:     seq.Active,
	})
	if err != nil {
		return fmt.Errorf("marshal sequence payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeSequence,
		EntityID:   seq.ID,
		Payload:    payload,
	})
}
