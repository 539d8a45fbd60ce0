// Package actions defines the action executor boundary: the engine hands a
// due step's channel and configuration to an executor and records the
// result. How each channel is actually fulfilled is external to this core.
package actions

import (
	"context"
	"encoding/json"

	"github.com/outflow-crm/outflow/internal/models"
)

// Result is the outcome of executing a step's action.
type Result struct {
	// Success indicates the channel accepted the action.
	Success bool

	// ProviderRef is an external reference for the dispatched action,
	// e.g. a message ID from the sending provider.
	ProviderRef string

	// Error carries the provider failure detail when Success is false.
	Error string
}

// Executor dispatches a step's action to its outreach channel.
//
// Execute is invoked at most once per (run, step) attempt; the engine marks
// the step in progress before calling and finalizes after. Implementations
// should honor the context deadline.
type Executor interface {
	Execute(ctx context.Context, leadID string, actionType models.ActionType, config json.RawMessage) (Result, error)
}

// Handler fulfills a single outreach channel.
type Handler interface {
	// ActionType returns the channel this handler serves.
	ActionType() models.ActionType

	// Handle dispatches one action for a lead.
	Handle(ctx context.Context, leadID string, config json.RawMessage) (Result, error)
}
