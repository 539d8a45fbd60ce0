// Package enroll manages run lifecycle transitions driven from outside the
// engine: enrollment, pause, resume, and stop.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/outflow-crm/outflow/internal/conditions"
	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/events"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/rs/zerolog"
)

// Service errors.
var (
	ErrSequenceNotFound  = errors.New("sequence not found")
	ErrSequenceInactive  = errors.New("sequence is not active")
	ErrAlreadyEnrolled   = errors.New("lead already has an active or paused run")
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidTransition = errors.New("invalid run transition")
)

// Service manages run enrollment and manual lifecycle transitions.
type Service struct {
	sequences *db.SequenceRepository
	runs      *db.RunRepository
	audit     events.Repository
	window    conditions.Window
	logger    zerolog.Logger

	// now is the clock; overridden in tests.
	now func() time.Time
}

// NewService creates an enrollment Service.
func NewService(sequences *db.SequenceRepository, runs *db.RunRepository, audit events.Repository, window conditions.Window) *Service {
	return &Service{
		sequences: sequences,
		runs:      runs,
		audit:     audit,
		window:    window,
		logger:    logging.Component("enroll"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates a new active run for the lead in the given sequence.
// The sequence's steps and stop conditions are snapshotted into the run, so
// later definition edits never change in-flight runs.
func (s *Service) Enroll(ctx context.Context, leadID, sequenceID string) (*models.Run, error) {
	return s.enroll(ctx, leadID, sequenceID, "manual")
}

func (s *Service) enroll(ctx context.Context, leadID, sequenceID, source string) (*models.Run, error) {
	if leadID == "" {
		return nil, fmt.Errorf("lead id is required")
	}

	seq, err := s.sequences.Get(ctx, sequenceID)
	if err != nil {
		if errors.Is(err, db.ErrSequenceNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, err
	}
	if !seq.Active {
		return nil, ErrSequenceInactive
	}

	// Pre-check for a live run. The partial unique index is the
	// authoritative guard; this check just gives a cleaner error for the
	// common case.
	if _, err := s.runs.GetActiveOrPausedByLead(ctx, leadID); err == nil {
		return nil, ErrAlreadyEnrolled
	} else if !errors.Is(err, db.ErrRunNotFound) {
		return nil, err
	}

	now := s.now()
	steps := make([]models.Step, len(seq.Steps))
	copy(steps, seq.Steps)
	stops := make([]models.StopCondition, len(seq.StopConditions))
	copy(stops, seq.StopConditions)

	due := conditions.NextDue(steps[0], now, s.window).UTC()
	run := &models.Run{
		LeadID:         leadID,
		SequenceID:     seq.ID,
		CurrentStep:    0,
		Status:         models.RunStatusActive,
		NextDueAt:      &due,
		Steps:          steps,
		StopConditions: stops,
		EnrolledAt:     now,
	}

	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, db.ErrDuplicateActiveRun) {
			// Lost the enrollment race to a concurrent caller.
			return nil, ErrAlreadyEnrolled
		}
		return nil, err
	}

	if err := s.sequences.IncrementEnrollmentCount(ctx, seq.ID); err != nil {
		s.logger.Warn().Err(err).Str("sequence_id", seq.ID).Msg("failed to bump enrollment count")
	}
	if err := events.LogEnrolled(ctx, s.audit, run, source); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record enrollment event")
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("lead_id", leadID).
		Str("sequence_id", seq.ID).
		Str("source", source).
		Time("next_due_at", due).
		Msg("lead enrolled")

	return run, nil
}

// Pause suspends an active run. The due time is left untouched so a later
// resume picks up exactly where the timer stood.
func (s *Service) Pause(ctx context.Context, runID string) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusActive {
		return fmt.Errorf("%w: cannot pause a %s run", ErrInvalidTransition, run.Status)
	}

	run.Status = models.RunStatusPaused
	if err := s.runs.Update(ctx, run, run.Version); err != nil {
		return err
	}

	s.auditTransition(ctx, run, models.EventTypeRunPaused, "")
	return nil
}

// Resume reactivates a paused run. The stored due time is preserved; if it
// already passed, the run becomes immediately due.
func (s *Service) Resume(ctx context.Context, runID string) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusPaused {
		return fmt.Errorf("%w: cannot resume a %s run", ErrInvalidTransition, run.Status)
	}

	run.Status = models.RunStatusActive
	if err := s.runs.Update(ctx, run, run.Version); err != nil {
		return err
	}

	s.auditTransition(ctx, run, models.EventTypeRunResumed, "")
	return nil
}

// Stop terminates a run. Terminal runs cannot be stopped again.
func (s *Service) Stop(ctx context.Context, runID, reason string) error {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return fmt.Errorf("%w: run is already %s", ErrInvalidTransition, run.Status)
	}
	if reason == "" {
		reason = models.StoppedReasonManual
	}

	run.Status = models.RunStatusStopped
	run.StoppedReason = reason
	run.NextDueAt = nil
	run.Pending = nil
	now := s.now()
	run.CompletedAt = &now

	if err := s.runs.Update(ctx, run, run.Version); err != nil {
		return err
	}

	s.auditTransition(ctx, run, models.EventTypeRunStopped, reason)
	s.logger.Info().
		Str("run_id", run.ID).
		Str("reason", reason).
		Msg("run stopped by caller")
	return nil
}

func (s *Service) getRun(ctx context.Context, runID string) (*models.Run, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *Service) auditTransition(ctx context.Context, run *models.Run, eventType models.EventType, reason string) {
	if err := events.LogRunTransition(ctx, s.audit, run, eventType, reason); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record transition event")
	}
}
