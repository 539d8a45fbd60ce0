package actions

import (
	"encoding/json"
	"fmt"

	"github.com/outflow-crm/outflow/internal/models"
)

// Per-channel action configurations. Raw config blobs are validated against
// the step's action type at sequence-definition time, so type drift is
// caught before any run is enrolled.

// CallConfig configures a call-reminder step.
type CallConfig struct {
	// Script is the talking-points template shown to the caller.
	Script string `json:"script,omitempty"`

	// DurationMinutes is the suggested call length.
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// EmailConfig configures a transactional email step.
type EmailConfig struct {
	// TemplateID selects the provider-side template.
	TemplateID string `json:"template_id"`

	// Subject overrides the template subject when set.
	Subject string `json:"subject,omitempty"`
}

// SMSConfig configures an SMS send step.
type SMSConfig struct {
	// Body is the message text template.
	Body string `json:"body"`
}

// WhatsAppConfig configures a messaging-platform send step.
type WhatsAppConfig struct {
	// TemplateName selects the approved message template.
	TemplateName string `json:"template_name"`
}

// LinkedInConfig configures a social outreach step.
type LinkedInConfig struct {
	// Message is the connection or follow-up message template.
	Message string `json:"message"`
}

// TaskConfig configures a generic task-creation step.
type TaskConfig struct {
	// Title is the task title.
	Title string `json:"title"`

	// Notes is free-form task detail.
	Notes string `json:"notes,omitempty"`
}

// ParseConfig decodes and validates a step's raw action config against its
// action type. Empty configs are allowed for channels with no required
// fields. The decoded value is returned for handlers that want it.
func ParseConfig(actionType models.ActionType, raw json.RawMessage) (any, error) {
	switch actionType {
	case models.ActionTypeCall:
		var cfg CallConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil

	case models.ActionTypeEmail:
		var cfg EmailConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.TemplateID == "" {
			return nil, fmt.Errorf("email action requires template_id")
		}
		return cfg, nil

	case models.ActionTypeSMS:
		var cfg SMSConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.Body == "" {
			return nil, fmt.Errorf("sms action requires body")
		}
		return cfg, nil

	case models.ActionTypeWhatsApp:
		var cfg WhatsAppConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.TemplateName == "" {
			return nil, fmt.Errorf("whatsapp action requires template_name")
		}
		return cfg, nil

	case models.ActionTypeLinkedIn:
		var cfg LinkedInConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.Message == "" {
			return nil, fmt.Errorf("linkedin action requires message")
		}
		return cfg, nil

	case models.ActionTypeTask:
		var cfg TaskConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.Title == "" {
			return nil, fmt.Errorf("task action requires title")
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown action type: %s", actionType)
	}
}

// ValidateStep checks a step's action config against its action type.
func ValidateStep(step models.Step) error {
	if _, err := ParseConfig(step.ActionType, step.ActionConfig); err != nil {
		return fmt.Errorf("step %d: %w", step.Order, err)
	}
	return nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse action config: %w", err)
	}
	return nil
}
