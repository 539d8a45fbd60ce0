package models

import "time"

// LeadFlags are the externally-owned lead signals the engine reads for
// stop-condition evaluation. The engine never writes them.
type LeadFlags struct {
	Unsubscribed     bool `json:"unsubscribed"`
	DoNotContact     bool `json:"do_not_contact"`
	Converted        bool `json:"converted"`
	MeetingScheduled bool `json:"meeting_scheduled"`
}

// ActivityType categorizes recorded lead activity.
type ActivityType string

const (
	ActivityTypeReply   ActivityType = "reply"
	ActivityTypeCall    ActivityType = "call"
	ActivityTypeEmail   ActivityType = "email"
	ActivityTypeSMS     ActivityType = "sms"
	ActivityTypeMessage ActivityType = "message"
	ActivityTypeNote    ActivityType = "note"
	ActivityTypeTask    ActivityType = "task"
)

// ActivityDirection distinguishes inbound lead activity from outbound
// outreach.
type ActivityDirection string

const (
	ActivityDirectionInbound  ActivityDirection = "inbound"
	ActivityDirectionOutbound ActivityDirection = "outbound"
)

// Activity is one recorded interaction with a lead.
type Activity struct {
	// ID is the unique identifier for the activity.
	ID string `json:"id"`

	// LeadID is the lead this activity belongs to.
	LeadID string `json:"lead_id"`

	// Type categorizes the activity.
	Type ActivityType `json:"type"`

	// Direction marks the activity as inbound or outbound.
	Direction ActivityDirection `json:"direction"`

	// Description is free text describing the activity.
	Description string `json:"description,omitempty"`

	// OccurredAt is when the activity happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks required fields of the activity.
func (a *Activity) Validate() error {
	validation := &ValidationErrors{}
	if a.LeadID == "" {
		validation.AddMessage("lead_id", "lead_id is required")
	}
	if a.Type == "" {
		validation.AddMessage("type", "type is required")
	}
	return validation.Err()
}
