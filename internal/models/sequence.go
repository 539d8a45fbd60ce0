// Package models defines the core data types for Outflow.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ActionType identifies the outreach channel a step acts on.
type ActionType string

const (
	ActionTypeCall     ActionType = "call"
	ActionTypeEmail    ActionType = "email"
	ActionTypeSMS      ActionType = "sms"
	ActionTypeWhatsApp ActionType = "whatsapp"
	ActionTypeLinkedIn ActionType = "linkedin"
	ActionTypeTask     ActionType = "task"
)

// ValidActionTypes lists every supported action type.
var ValidActionTypes = []ActionType{
	ActionTypeCall,
	ActionTypeEmail,
	ActionTypeSMS,
	ActionTypeWhatsApp,
	ActionTypeLinkedIn,
	ActionTypeTask,
}

// Valid reports whether the action type is one of the supported channels.
func (a ActionType) Valid() bool {
	for _, t := range ValidActionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// StopCondition is a sequence-level signal that terminates a run early.
type StopCondition string

const (
	StopConditionReplied          StopCondition = "replied"
	StopConditionMeetingScheduled StopCondition = "meeting_scheduled"
	StopConditionUnsubscribed     StopCondition = "unsubscribed"
	StopConditionDoNotContact     StopCondition = "do_not_contact"
	StopConditionConverted        StopCondition = "converted"
)

// ValidStopConditions lists every supported stop condition.
var ValidStopConditions = []StopCondition{
	StopConditionReplied,
	StopConditionMeetingScheduled,
	StopConditionUnsubscribed,
	StopConditionDoNotContact,
	StopConditionConverted,
}

// Valid reports whether the stop condition is supported.
func (c StopCondition) Valid() bool {
	for _, s := range ValidStopConditions {
		if c == s {
			return true
		}
	}
	return false
}

// StepConditions are the per-step execution conditions.
type StepConditions struct {
	// OnlyIfNoResponse skips the step if the lead has replied since enrollment.
	OnlyIfNoResponse bool `json:"only_if_no_response,omitempty" yaml:"only_if_no_response,omitempty"`

	// OnlyBusinessHours reschedules execution into the business-hours window.
	OnlyBusinessHours bool `json:"only_business_hours,omitempty" yaml:"only_business_hours,omitempty"`

	// SkipWeekends shifts due times that land on a weekend to Monday.
	SkipWeekends bool `json:"skip_weekends,omitempty" yaml:"skip_weekends,omitempty"`
}

// Step is one scheduled action within a sequence.
type Step struct {
	// Order is the 1-based position of the step within the sequence.
	Order int `json:"order" yaml:"order"`

	// DelayDays is the whole-day part of the delay before the step is due.
	DelayDays int `json:"delay_days" yaml:"delay_days"`

	// DelayHours is the hour part of the delay, in [0,23].
	DelayHours int `json:"delay_hours" yaml:"delay_hours"`

	// ActionType is the outreach channel used by the step.
	ActionType ActionType `json:"action_type" yaml:"action_type"`

	// ActionConfig is the channel-specific configuration, validated per type.
	ActionConfig json.RawMessage `json:"action_config,omitempty" yaml:"-"`

	// Conditions are the step's execution conditions.
	Conditions StepConditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Delay returns the step's configured delay as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

// Sequence is an ordered, declarative outreach sequence definition.
type Sequence struct {
	// ID is the unique identifier for the sequence.
	ID string `json:"id"`

	// TeamID scopes the sequence to a team.
	TeamID string `json:"team_id"`

	// Name is the human-readable sequence name.
	Name string `json:"name"`

	// Active controls whether new enrollments are accepted.
	Active bool `json:"active"`

	// EligibilityTags restricts auto-enrollment to leads carrying one of
	// these tags. Empty means the sequence applies to all leads.
	EligibilityTags []string `json:"eligibility_tags,omitempty"`

	// Steps is the ordered step list. Order is contiguous starting at 1.
	Steps []Step `json:"steps"`

	// StopConditions terminate a run early when matched.
	StopConditions []StopCondition `json:"stop_conditions,omitempty"`

	// EnrollmentCount tracks total enrollments, best-effort.
	EnrollmentCount int `json:"enrollment_count"`

	// CreatedAt is when the sequence was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the sequence was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants of the sequence definition.
func (s *Sequence) Validate() error {
	validation := &ValidationErrors{}

	if strings.TrimSpace(s.Name) == "" {
		validation.AddMessage("name", "name is required")
	}
	if len(s.Steps) == 0 {
		validation.AddMessage("steps", "at least one step is required")
	}
	for i, step := range s.Steps {
		if step.Order != i+1 {
			validation.AddMessage("steps", "step order must be contiguous starting at 1")
			break
		}
	}
	for _, step := range s.Steps {
		if step.DelayDays < 0 {
			validation.AddMessage("steps", "delay_days must be non-negative")
		}
		if step.DelayHours < 0 || step.DelayHours > 23 {
			validation.AddMessage("steps", "delay_hours must be in [0,23]")
		}
		if !step.ActionType.Valid() {
			validation.AddMessage("steps", "unknown action type: "+string(step.ActionType))
		}
	}
	for _, sc := range s.StopConditions {
		if !sc.Valid() {
			validation.AddMessage("stop_conditions", "unknown stop condition: "+string(sc))
		}
	}

	return validation.Err()
}

// MatchesTag reports whether the sequence accepts leads carrying the tag.
// A sequence without eligibility tags matches every lead.
func (s *Sequence) MatchesTag(tag string) bool {
	if len(s.EligibilityTags) == 0 {
		return true
	}
	for _, t := range s.EligibilityTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
