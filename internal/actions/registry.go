package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/outflow-crm/outflow/internal/models"
)

// Registry errors.
var (
	ErrNoHandler = errors.New("no handler registered for action type")
)

// Registry maps action types to channel handlers and implements Executor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[models.ActionType]Handler),
	}
}

// Register adds a handler for its action type.
// Returns an error if the type already has a handler.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := h.ActionType()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler for %q already registered", t)
	}

	r.handlers[t] = h
	return nil
}

// MustRegister adds a handler, panicking on conflict.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Get retrieves the handler for an action type, or nil.
func (r *Registry) Get(t models.ActionType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[t]
}

// Types returns the registered action types.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Execute dispatches to the registered handler for the action type.
func (r *Registry) Execute(ctx context.Context, leadID string, actionType models.ActionType, config json.RawMessage) (Result, error) {
	h := r.Get(actionType)
	if h == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoHandler, actionType)
	}
	return h.Handle(ctx, leadID, config)
}
