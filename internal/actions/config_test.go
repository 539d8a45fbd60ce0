package actions

import (
	"encoding/json"
	"testing"

	"github.com/outflow-crm/outflow/internal/models"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name       string
		actionType models.ActionType
		raw        string
		wantErr    bool
	}{
		{"call empty config ok", models.ActionTypeCall, ``, false},
		{"call with script", models.ActionTypeCall, `{"script":"intro","duration_minutes":15}`, false},
		{"email with template", models.ActionTypeEmail, `{"template_id":"welcome-1"}`, false},
		{"email missing template", models.ActionTypeEmail, `{"subject":"Hi"}`, true},
		{"email empty config", models.ActionTypeEmail, ``, true},
		{"sms with body", models.ActionTypeSMS, `{"body":"quick question"}`, false},
		{"sms missing body", models.ActionTypeSMS, `{}`, true},
		{"whatsapp with template", models.ActionTypeWhatsApp, `{"template_name":"followup"}`, false},
		{"whatsapp missing template", models.ActionTypeWhatsApp, `{}`, true},
		{"linkedin with message", models.ActionTypeLinkedIn, `{"message":"let's connect"}`, false},
		{"linkedin missing message", models.ActionTypeLinkedIn, `{}`, true},
		{"task with title", models.ActionTypeTask, `{"title":"review account"}`, false},
		{"task missing title", models.ActionTypeTask, `{}`, true},
		{"unknown type", "telegram", `{}`, true},
		{"malformed json", models.ActionTypeCall, `{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.actionType, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfig_ReturnsTypedValue(t *testing.T) {
	v, err := ParseConfig(models.ActionTypeEmail, json.RawMessage(`{"template_id":"t1","subject":"Hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, ok := v.(EmailConfig)
	if !ok {
		t.Fatalf("expected EmailConfig, got %T", v)
	}
	if cfg.TemplateID != "t1" || cfg.Subject != "Hi" {
		t.Errorf("config mismatch: %+v", cfg)
	}
}

func TestValidateStep(t *testing.T) {
	step := models.Step{
		Order:        2,
		ActionType:   models.ActionTypeSMS,
		ActionConfig: json.RawMessage(`{}`),
	}
	err := ValidateStep(step)
	if err == nil {
		t.Fatal("expected error for sms without body")
	}

	step.ActionConfig = json.RawMessage(`{"body":"hello"}`)
	if err := ValidateStep(step); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
