package actions

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/outflow-crm/outflow/internal/models"
	"github.com/rs/zerolog"
)

// LogExecutor is the default executor: it validates the config, logs the
// dispatch, and reports success. Deployments replace it (or register real
// channel handlers) to wire actual providers.
type LogExecutor struct {
	logger zerolog.Logger
}

// NewLogExecutor creates a LogExecutor.
func NewLogExecutor() *LogExecutor {
	return &LogExecutor{logger: logging.Component("actions")}
}

// Execute logs the action and returns a synthetic provider reference.
func (e *LogExecutor) Execute(ctx context.Context, leadID string, actionType models.ActionType, config json.RawMessage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := ParseConfig(actionType, config); err != nil {
		return Result{Error: err.Error()}, err
	}

	ref := "log-" + uuid.New().String()
	e.logger.Info().
		Str("lead_id", leadID).
		Str("action_type", string(actionType)).
		Str("provider_ref", ref).
		Msg("action dispatched")

	return Result{Success: true, ProviderRef: ref}, nil
}
