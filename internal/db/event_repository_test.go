package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

func TestEventRepository_AppendAndGet(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()

	payload, _ := json.Marshal(models.EnrolledPayload{
		RunID: "run-1", LeadID: "lead-1", SequenceID: "seq-1",
	})
	event := &models.Event{
		Type:       models.EventTypeRunEnrolled,
		EntityType: models.EntityTypeRun,
		EntityID:   "run-1",
		Payload:    payload,
		Metadata:   map[string]string{"source": "manual"},
	}
	if err := repo.Append(ctx, event); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if event.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	got, err := repo.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Type != models.EventTypeRunEnrolled || got.EntityID != "run-1" {
		t.Errorf("event mismatch: %+v", got)
	}
	var p models.EnrolledPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if p.LeadID != "lead-1" {
		t.Errorf("payload mismatch: %+v", p)
	}
	if got.Metadata["source"] != "manual" {
		t.Errorf("metadata mismatch: %+v", got.Metadata)
	}
}

func TestEventRepository_Append_RejectsIncomplete(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))

	err := repo.Append(context.Background(), &models.Event{Type: models.EventTypeRunEnrolled})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestEventRepository_Get_NotFound(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventRepository_Query(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	append := func(eventType models.EventType, entityType models.EntityType, entityID string, at time.Time) {
		t.Helper()
		err := repo.Append(ctx, &models.Event{
			Type:       eventType,
			EntityType: entityType,
			EntityID:   entityID,
			Timestamp:  at,
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	append(models.EventTypeRunEnrolled, models.EntityTypeRun, "run-1", base)
	append(models.EventTypeStepExecuted, models.EntityTypeRun, "run-1", base.Add(time.Minute))
	append(models.EventTypeRunCompleted, models.EntityTypeRun, "run-1", base.Add(2*time.Minute))
	append(models.EventTypeRunEnrolled, models.EntityTypeRun, "run-2", base.Add(3*time.Minute))
	append(models.EventTypeSequenceImported, models.EntityTypeSequence, "seq-1", base.Add(4*time.Minute))

	// By entity, oldest first.
	events, err := repo.ListByEntity(ctx, models.EntityTypeRun, "run-1", 0)
	if err != nil {
		t.Fatalf("list by entity failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != models.EventTypeRunEnrolled || events[2].Type != models.EventTypeRunCompleted {
		t.Errorf("ordering mismatch: %s ... %s", events[0].Type, events[2].Type)
	}

	// By type.
	enrolled := models.EventTypeRunEnrolled
	events, err = repo.Query(ctx, EventQuery{Type: &enrolled})
	if err != nil {
		t.Fatalf("query by type failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 enrolled events, got %d", len(events))
	}

	// Time window: since inclusive, until exclusive.
	since := base.Add(time.Minute)
	until := base.Add(3 * time.Minute)
	events, err = repo.Query(ctx, EventQuery{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("query by window failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(events))
	}

	// Limit.
	events, err = repo.Query(ctx, EventQuery{Limit: 1})
	if err != nil {
		t.Fatalf("limited query failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}
