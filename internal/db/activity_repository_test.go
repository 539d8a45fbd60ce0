package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

func TestActivityRepository_RecordAndList(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	ctx := context.Background()

	activity := &models.Activity{
		LeadID:      "lead-1",
		Type:        models.ActivityTypeReply,
		Direction:   models.ActivityDirectionInbound,
		Description: "sounds interesting",
	}
	if err := repo.Record(ctx, activity); err != nil {
		t.Fatalf("failed to record activity: %v", err)
	}
	if activity.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if activity.OccurredAt.IsZero() {
		t.Error("expected OccurredAt to be set")
	}

	list, err := repo.ListByLead(ctx, "lead-1", 10)
	if err != nil {
		t.Fatalf("failed to list activities: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(list))
	}
	if list[0].Type != models.ActivityTypeReply || list[0].Direction != models.ActivityDirectionInbound {
		t.Errorf("activity mismatch: %+v", list[0])
	}
	if list[0].Description != "sounds interesting" {
		t.Errorf("description mismatch: %q", list[0].Description)
	}
}

func TestActivityRepository_Record_DefaultsDirection(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))

	activity := &models.Activity{LeadID: "lead-1", Type: models.ActivityTypeEmail}
	if err := repo.Record(context.Background(), activity); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	if activity.Direction != models.ActivityDirectionOutbound {
		t.Errorf("expected outbound default, got %s", activity.Direction)
	}
}

func TestActivityRepository_Record_RejectsInvalid(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))

	err := repo.Record(context.Background(), &models.Activity{Type: models.ActivityTypeReply})
	if !errors.Is(err, ErrInvalidActivity) {
		t.Errorf("expected ErrInvalidActivity for missing lead, got %v", err)
	}
}

func TestActivityRepository_HasInboundSince(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	ctx := context.Background()

	enrolled := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	record := func(lead string, dir models.ActivityDirection, at time.Time) {
		t.Helper()
		err := repo.Record(ctx, &models.Activity{
			LeadID:     lead,
			Type:       models.ActivityTypeReply,
			Direction:  dir,
			OccurredAt: at,
		})
		if err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	// Outbound and pre-enrollment activity must not count as a reply.
	record("lead-1", models.ActivityDirectionOutbound, enrolled.Add(time.Hour))
	record("lead-1", models.ActivityDirectionInbound, enrolled.Add(-time.Hour))

	got, err := repo.HasInboundSince(ctx, "lead-1", enrolled)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got {
		t.Error("expected no inbound reply since enrollment")
	}

	record("lead-1", models.ActivityDirectionInbound, enrolled.Add(2*time.Hour))

	got, err = repo.HasInboundSince(ctx, "lead-1", enrolled)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !got {
		t.Error("expected inbound reply since enrollment")
	}

	// Other leads' replies do not leak.
	got, err = repo.HasInboundSince(ctx, "lead-2", enrolled)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got {
		t.Error("expected no reply for an unrelated lead")
	}
}
