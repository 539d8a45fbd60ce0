package models

import (
	"testing"
	"time"
)

func validSequence() *Sequence {
	return &Sequence{
		Name: "Cold outreach",
		Steps: []Step{
			{Order: 1, ActionType: ActionTypeEmail},
			{Order: 2, DelayDays: 2, DelayHours: 3, ActionType: ActionTypeCall},
		},
		StopConditions: []StopCondition{StopConditionReplied},
	}
}

func TestSequence_Validate(t *testing.T) {
	if err := validSequence().Validate(); err != nil {
		t.Fatalf("valid sequence rejected: %v", err)
	}
}

func TestSequence_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Sequence)
	}{
		{"empty name", func(s *Sequence) { s.Name = "  " }},
		{"no steps", func(s *Sequence) { s.Steps = nil }},
		{"order gap", func(s *Sequence) { s.Steps[1].Order = 3 }},
		{"order not starting at 1", func(s *Sequence) { s.Steps[0].Order = 0 }},
		{"negative delay days", func(s *Sequence) { s.Steps[0].DelayDays = -1 }},
		{"delay hours out of range", func(s *Sequence) { s.Steps[1].DelayHours = 24 }},
		{"unknown action type", func(s *Sequence) { s.Steps[0].ActionType = "carrier_pigeon" }},
		{"unknown stop condition", func(s *Sequence) { s.StopConditions = []StopCondition{"ghosted"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := validSequence()
			tt.mutate(seq)
			if err := seq.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestStep_Delay(t *testing.T) {
	step := Step{DelayDays: 2, DelayHours: 3}
	if got, want := step.Delay(), 51*time.Hour; got != want {
		t.Errorf("Delay() = %v, want %v", got, want)
	}

	if (Step{}).Delay() != 0 {
		t.Error("zero step should have zero delay")
	}
}

func TestSequence_MatchesTag(t *testing.T) {
	seq := &Sequence{EligibilityTags: []string{"warm", "Inbound"}}

	if !seq.MatchesTag("warm") {
		t.Error("expected exact tag to match")
	}
	if !seq.MatchesTag("inbound") {
		t.Error("expected case-insensitive match")
	}
	if seq.MatchesTag("cold") {
		t.Error("unexpected match for unlisted tag")
	}

	untagged := &Sequence{}
	if !untagged.MatchesTag("anything") {
		t.Error("sequence without tags should match every lead")
	}
}
