package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes audit events in the system.
type EventType string

const (
	// Run events
	EventTypeRunEnrolled  EventType = "run.enrolled"
	EventTypeRunPaused    EventType = "run.paused"
	EventTypeRunResumed   EventType = "run.resumed"
	EventTypeRunStopped   EventType = "run.stopped"
	EventTypeRunCompleted EventType = "run.completed"

	// Step events
	EventTypeStepExecuted    EventType = "step.executed"
	EventTypeStepSkipped     EventType = "step.skipped"
	EventTypeStepRescheduled EventType = "step.rescheduled"
	EventTypeStepFailed      EventType = "step.failed"

	// Sequence events
	EventTypeSequenceImported    EventType = "sequence.imported"
	EventTypeSequenceActivated   EventType = "sequence.activated"
	EventTypeSequenceDeactivated EventType = "sequence.deactivated"

	// Lead events
	EventTypeLeadAutoEnrolled EventType = "lead.auto_enrolled"
	EventTypeActivityRecorded EventType = "activity.recorded"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeRun      EntityType = "run"
	EntityTypeSequence EntityType = "sequence"
	EntityTypeLead     EntityType = "lead"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only audit log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// EnrolledPayload is the payload for run.enrolled and lead.auto_enrolled events.
type EnrolledPayload struct {
	RunID      string    `json:"run_id"`
	LeadID     string    `json:"lead_id"`
	SequenceID string    `json:"sequence_id"`
	NextDueAt  time.Time `json:"next_due_at"`
	Source     string    `json:"source,omitempty"`
}

// StepExecutedPayload is the payload for step.executed events.
type StepExecutedPayload struct {
	RunID       string     `json:"run_id"`
	LeadID      string     `json:"lead_id"`
	StepOrder   int        `json:"step_order"`
	ActionType  ActionType `json:"action_type"`
	ProviderRef string     `json:"provider_ref,omitempty"`
}

// StepSkippedPayload is the payload for step.skipped events.
type StepSkippedPayload struct {
	RunID     string `json:"run_id"`
	LeadID    string `json:"lead_id"`
	StepOrder int    `json:"step_order"`
	Reason    string `json:"reason"`
}

// StepFailedPayload is the payload for step.failed events.
type StepFailedPayload struct {
	RunID     string `json:"run_id"`
	LeadID    string `json:"lead_id"`
	StepOrder int    `json:"step_order"`
	Error     string `json:"error"`
	Attempt   int    `json:"attempt"`
}

// StepRescheduledPayload is the payload for step.rescheduled events.
type StepRescheduledPayload struct {
	RunID     string    `json:"run_id"`
	LeadID    string    `json:"lead_id"`
	StepOrder int       `json:"step_order"`
	Reason    string    `json:"reason"`
	NextDueAt time.Time `json:"next_due_at"`
}

// RunStoppedPayload is the payload for run.stopped events.
type RunStoppedPayload struct {
	RunID  string `json:"run_id"`
	LeadID string `json:"lead_id"`
	Reason string `json:"reason"`
}

// ActivityRecordedPayload is the payload for activity.recorded events.
type ActivityRecordedPayload struct {
	ActivityID string            `json:"activity_id"`
	LeadID     string            `json:"lead_id"`
	Type       ActivityType      `json:"type"`
	Direction  ActivityDirection `json:"direction"`
}

// SequencePayload is the payload for sequence lifecycle events.
type SequencePayload struct {
	SequenceID string `json:"sequence_id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}
