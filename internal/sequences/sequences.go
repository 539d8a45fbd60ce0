// Package sequences provides loading and validation of sequence definition
// files. Definitions are authored as YAML by the external builder surface
// and imported into storage via the CLI.
package sequences

import (
	"encoding/json"
	"fmt"

	"github.com/outflow-crm/outflow/internal/actions"
	"github.com/outflow-crm/outflow/internal/models"
)

// Definition is the YAML authoring format for a sequence.
type Definition struct {
	Name            string    `yaml:"name"`
	TeamID          string    `yaml:"team_id,omitempty"`
	Active          bool      `yaml:"active"`
	EligibilityTags []string  `yaml:"eligibility_tags,omitempty"`
	StopConditions  []string  `yaml:"stop_conditions,omitempty"`
	Steps           []StepDef `yaml:"steps"`
	Source          string    `yaml:"-"` // file path or "inline"
}

// StepDef is one step in the authoring format.
type StepDef struct {
	Order        int                   `yaml:"order,omitempty"`
	DelayDays    int                   `yaml:"delay_days"`
	DelayHours   int                   `yaml:"delay_hours"`
	ActionType   string                `yaml:"action_type"`
	ActionConfig map[string]any        `yaml:"action_config,omitempty"`
	Conditions   models.StepConditions `yaml:"conditions,omitempty"`
}

// ToModel converts the authored definition into a validated model
// sequence. Step order may be omitted in the file; positions are assigned
// from the list order.
func (d *Definition) ToModel() (*models.Sequence, error) {
	seq := &models.Sequence{
		Name:            d.Name,
		TeamID:          d.TeamID,
		Active:          d.Active,
		EligibilityTags: d.EligibilityTags,
	}

	for _, sc := range d.StopConditions {
		seq.StopConditions = append(seq.StopConditions, models.StopCondition(sc))
	}

	for i, stepDef := range d.Steps {
		order := stepDef.Order
		if order == 0 {
			order = i + 1
		}

		var configJSON json.RawMessage
		if len(stepDef.ActionConfig) > 0 {
			data, err := json.Marshal(stepDef.ActionConfig)
			if err != nil {
				return nil, fmt.Errorf("step %d: marshal action config: %w", order, err)
			}
			configJSON = data
		}

		seq.Steps = append(seq.Steps, models.Step{
			Order:        order,
			DelayDays:    stepDef.DelayDays,
			DelayHours:   stepDef.DelayHours,
			ActionType:   models.ActionType(stepDef.ActionType),
			ActionConfig: configJSON,
			Conditions:   stepDef.Conditions,
		})
	}

	if err := seq.Validate(); err != nil {
		return nil, err
	}
	for _, step := range seq.Steps {
		if err := actions.ValidateStep(step); err != nil {
			return nil, err
		}
	}

	return seq, nil
}
