package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

func testSteps() []models.Step {
	return []models.Step{
		{Order: 1, ActionType: models.ActionTypeEmail},
		{Order: 2, DelayDays: 2, ActionType: models.ActionTypeCall,
			Conditions: models.StepConditions{OnlyIfNoResponse: true}},
	}
}

func newTestRun(leadID string) *models.Run {
	due := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return &models.Run{
		LeadID:         leadID,
		SequenceID:     "seq-1",
		Status:         models.RunStatusActive,
		NextDueAt:      &due,
		Steps:          testSteps(),
		StopConditions: []models.StopCondition{models.StopConditionReplied},
	}
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	run := newTestRun("lead-1")
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if run.Version != 1 {
		t.Errorf("expected version 1, got %d", run.Version)
	}
	if run.EnrolledAt.IsZero() {
		t.Error("expected EnrolledAt to be set")
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.LeadID != "lead-1" || got.SequenceID != "seq-1" {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Status != models.RunStatusActive {
		t.Errorf("expected active, got %s", got.Status)
	}
	if len(got.Steps) != 2 || got.Steps[1].Conditions.OnlyIfNoResponse != true {
		t.Errorf("step snapshot not preserved: %+v", got.Steps)
	}
	if len(got.StopConditions) != 1 || got.StopConditions[0] != models.StopConditionReplied {
		t.Errorf("stop-condition snapshot not preserved: %+v", got.StopConditions)
	}
	if got.NextDueAt == nil || !got.NextDueAt.Equal(*run.NextDueAt) {
		t.Errorf("NextDueAt mismatch: %v", got.NextDueAt)
	}
	if got.Pending != nil {
		t.Error("expected no pending step")
	}
}

func TestRunRepository_Get_NotFound(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepository_Create_RejectsSecondLiveRun(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newTestRun("lead-1")); err != nil {
		t.Fatalf("first enrollment failed: %v", err)
	}

	err := repo.Create(ctx, newTestRun("lead-1"))
	if !errors.Is(err, ErrDuplicateActiveRun) {
		t.Errorf("expected ErrDuplicateActiveRun, got %v", err)
	}

	// A paused run also blocks enrollment.
	paused := newTestRun("lead-2")
	paused.Status = models.RunStatusPaused
	if err := repo.Create(ctx, paused); err != nil {
		t.Fatalf("paused enrollment failed: %v", err)
	}
	err = repo.Create(ctx, newTestRun("lead-2"))
	if !errors.Is(err, ErrDuplicateActiveRun) {
		t.Errorf("expected ErrDuplicateActiveRun for paused lead, got %v", err)
	}

	// Other leads are unaffected.
	if err := repo.Create(ctx, newTestRun("lead-3")); err != nil {
		t.Errorf("unrelated lead enrollment failed: %v", err)
	}
}

func TestRunRepository_Create_AllowedAfterTerminal(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	first := newTestRun("lead-1")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("first enrollment failed: %v", err)
	}

	first.Status = models.RunStatusStopped
	first.StoppedReason = models.StoppedReasonManual
	first.NextDueAt = nil
	if err := repo.Update(ctx, first, first.Version); err != nil {
		t.Fatalf("failed to stop run: %v", err)
	}

	if err := repo.Create(ctx, newTestRun("lead-1")); err != nil {
		t.Errorf("re-enrollment after stop failed: %v", err)
	}
}

func TestRunRepository_GetActiveOrPausedByLead(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	run := newTestRun("lead-1")
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	got, err := repo.GetActiveOrPausedByLead(ctx, "lead-1")
	if err != nil {
		t.Fatalf("failed to find live run: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("expected run %s, got %s", run.ID, got.ID)
	}

	if _, err := repo.GetActiveOrPausedByLead(ctx, "lead-2"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepository_Update_CAS(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	run := newTestRun("lead-1")
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	run.CurrentStep = 1
	if err := repo.Update(ctx, run, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if run.Version != 2 {
		t.Errorf("expected version bumped to 2, got %d", run.Version)
	}

	// A writer presenting the stale version loses.
	stale := newTestRun("ignored")
	stale.ID = run.ID
	stale.LeadID = run.LeadID
	err := repo.Update(ctx, stale, 1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	// The winning write stuck.
	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to re-read run: %v", err)
	}
	if got.CurrentStep != 1 {
		t.Errorf("expected current_step 1, got %d", got.CurrentStep)
	}
	if got.Version != 2 {
		t.Errorf("expected stored version 2, got %d", got.Version)
	}
}

func TestRunRepository_Update_VanishedRun(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))

	run := newTestRun("lead-1")
	run.ID = "never-inserted"
	err := repo.Update(context.Background(), run, 1)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepository_Update_PersistsPendingAndCompletions(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	run := newTestRun("lead-1")
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	started := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	run.Pending = &models.PendingStep{StepOrder: 1, StartedAt: started, Attempt: 1}
	run.StepsCompleted = []models.StepCompletion{
		{StepOrder: 1, ExecutedAt: started, ProviderRef: "msg-123"},
	}
	if err := repo.Update(ctx, run, run.Version); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Pending == nil || got.Pending.StepOrder != 1 || got.Pending.Attempt != 1 {
		t.Errorf("pending marker not preserved: %+v", got.Pending)
	}
	if !got.Pending.StartedAt.Equal(started) {
		t.Errorf("pending StartedAt mismatch: %v", got.Pending.StartedAt)
	}
	if len(got.StepsCompleted) != 1 || got.StepsCompleted[0].ProviderRef != "msg-123" {
		t.Errorf("completions not preserved: %+v", got.StepsCompleted)
	}

	// Clearing the marker persists too.
	got.Pending = nil
	if err := repo.Update(ctx, got, got.Version); err != nil {
		t.Fatalf("clear update failed: %v", err)
	}
	again, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to re-read: %v", err)
	}
	if again.Pending != nil {
		t.Errorf("expected pending cleared, got %+v", again.Pending)
	}
}

func TestRunRepository_FindActiveDueBefore(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	mkRun := func(lead string, due time.Time, status models.RunStatus) *models.Run {
		r := newTestRun(lead)
		r.Status = status
		r.NextDueAt = &due
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("failed to create run for %s: %v", lead, err)
		}
		return r
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	late := mkRun("lead-late", base.Add(2*time.Minute), models.RunStatusActive)
	early := mkRun("lead-early", base, models.RunStatusActive)
	mkRun("lead-future", base.Add(2*time.Hour), models.RunStatusActive)
	mkRun("lead-paused", base, models.RunStatusPaused)

	due, err := repo.FindActiveDueBefore(ctx, base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due runs, got %d", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Errorf("expected oldest due first: got %s then %s", due[0].LeadID, due[1].LeadID)
	}

	// Limit caps the batch.
	capped, err := repo.FindActiveDueBefore(ctx, base.Add(5*time.Minute), 1)
	if err != nil {
		t.Fatalf("capped query failed: %v", err)
	}
	if len(capped) != 1 || capped[0].ID != early.ID {
		t.Errorf("expected only the oldest run, got %d", len(capped))
	}
}

func TestRunRepository_List(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	active := newTestRun("lead-1")
	if err := repo.Create(ctx, active); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	failed := newTestRun("lead-2")
	failed.SequenceID = "seq-2"
	if err := repo.Create(ctx, failed); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	failed.Status = models.RunStatusStopped
	failed.StoppedReason = models.StoppedReasonExecutionFailedExhausted
	failed.NextDueAt = nil
	if err := repo.Update(ctx, failed, failed.Version); err != nil {
		t.Fatalf("failed to stop run: %v", err)
	}

	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 runs, got %d", len(all))
	}

	byLead, err := repo.List(ctx, ListFilter{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("list by lead failed: %v", err)
	}
	if len(byLead) != 1 || byLead[0].ID != active.ID {
		t.Errorf("lead filter mismatch: %+v", byLead)
	}

	bySeq, err := repo.List(ctx, ListFilter{SequenceID: "seq-2"})
	if err != nil {
		t.Fatalf("list by sequence failed: %v", err)
	}
	if len(bySeq) != 1 || bySeq[0].ID != failed.ID {
		t.Errorf("sequence filter mismatch: %+v", bySeq)
	}

	byStatus, err := repo.List(ctx, ListFilter{Status: models.RunStatusActive})
	if err != nil {
		t.Fatalf("list by status failed: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != active.ID {
		t.Errorf("status filter mismatch: %+v", byStatus)
	}

	attention, err := repo.List(ctx, ListFilter{NeedsAttention: true})
	if err != nil {
		t.Fatalf("needs-attention list failed: %v", err)
	}
	if len(attention) != 1 || attention[0].ID != failed.ID {
		t.Errorf("needs-attention filter mismatch: %+v", attention)
	}
}

func TestRunRepository_Create_ConcurrentEnrollOneWinner(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	ctx := context.Background()

	// Concurrent enrollments for the same lead: the partial unique index
	// lets exactly one insert through.
	const attempts = 8
	var created int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newTestRun("lead-race"))
			switch {
			case err == nil:
				atomic.AddInt64(&created, 1)
			case errors.Is(err, ErrDuplicateActiveRun):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly 1 successful enrollment, got %d", created)
	}

	runs, err := repo.List(ctx, ListFilter{LeadID: "lead-race"})
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 stored run, got %d", len(runs))
	}
}
