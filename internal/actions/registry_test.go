package actions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/outflow-crm/outflow/internal/models"
)

// stubHandler serves one action type with a fixed result.
type stubHandler struct {
	actionType models.ActionType
	result     Result
	err        error
	calls      int
}

func (h *stubHandler) ActionType() models.ActionType { return h.actionType }

func (h *stubHandler) Handle(ctx context.Context, leadID string, config json.RawMessage) (Result, error) {
	h.calls++
	return h.result, h.err
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	reg := NewRegistry()
	handler := &stubHandler{
		actionType: models.ActionTypeEmail,
		result:     Result{Success: true, ProviderRef: "email-1"},
	}
	if err := reg.Register(handler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := reg.Execute(context.Background(), "lead-1", models.ActionTypeEmail, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.Success || result.ProviderRef != "email-1" {
		t.Errorf("result mismatch: %+v", result)
	}
	if handler.calls != 1 {
		t.Errorf("expected 1 call, got %d", handler.calls)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubHandler{actionType: models.ActionTypeSMS}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register(&stubHandler{actionType: models.ActionTypeSMS}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegistry_ExecuteUnregisteredType(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Execute(context.Background(), "lead-1", models.ActionTypeCall, nil)
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&stubHandler{actionType: models.ActionTypeCall})
	reg.MustRegister(&stubHandler{actionType: models.ActionTypeTask})

	types := reg.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	if reg.Get(models.ActionTypeCall) == nil || reg.Get(models.ActionTypeTask) == nil {
		t.Error("expected registered handlers to be retrievable")
	}
	if reg.Get(models.ActionTypeEmail) != nil {
		t.Error("expected nil for unregistered type")
	}
}

func TestLogExecutor_Execute(t *testing.T) {
	exec := NewLogExecutor()

	result, err := exec.Execute(context.Background(), "lead-1", models.ActionTypeCall, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if !strings.HasPrefix(result.ProviderRef, "log-") {
		t.Errorf("expected synthetic ref, got %q", result.ProviderRef)
	}
}

func TestLogExecutor_RejectsInvalidConfig(t *testing.T) {
	exec := NewLogExecutor()

	result, err := exec.Execute(context.Background(), "lead-1", models.ActionTypeEmail, json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for email without template_id")
	}
	if result.Success {
		t.Error("expected failure result")
	}
}

func TestLogExecutor_HonorsCancelledContext(t *testing.T) {
	exec := NewLogExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, "lead-1", models.ActionTypeCall, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
