// Package messaging is the request/response channel external triggers use
// to drive the engine: a router from action names to engine calls, and an
// HTTP transport for it.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/verte-zerg/overtype/internal/engine"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/settings"
)

const (
	ActionActivate        = "activateSelectionMode"
	ActionDeactivate      = "deactivateSelectionMode"
	ActionStatus          = "getSessionStatus"
	ActionShowHints       = "showHints"
	ActionHideHints       = "hideHints"
	ActionResetSettings   = "resetSettings"
	ActionForceCleanup    = "forceCleanup"
	ActionValidateSession = "validateSession"
	ActionSummary         = "getSessionSummary"
)

// ErrUnknownAction is returned for actions with no handler.
var ErrUnknownAction = errors.New("messaging: unknown action")

// Engine is what the router drives.
type Engine interface {
	ActivateSelectionMode(ctx context.Context, req *engine.SelectionRequest) (engine.Status, error)
	DeactivateSelectionMode() engine.Status
	Status() engine.Status
	ShowHints(ctx context.Context) error
	HideHints(ctx context.Context) error
	ResetSettings(ctx context.Context) (settings.Values, error)
	ForceCleanup() engine.CleanupReport
	ValidateSession() (bool, error)
	LastSummary() (model.Summary, bool)
}

// Request is one message.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandlerFunc serves one action.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Router maps actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

// NewRouter wires every engine action.
func NewRouter(e Engine, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{handlers: map[string]HandlerFunc{}, log: logger}

	r.Handle(ActionActivate, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req *engine.SelectionRequest
		if len(payload) > 0 && string(payload) != "null" {
			req = &engine.SelectionRequest{}
			if err := json.Unmarshal(payload, req); err != nil {
				return nil, fmt.Errorf("messaging: bad payload: %w", err)
			}
		}
		return e.ActivateSelectionMode(ctx, req)
	})
	r.Handle(ActionDeactivate, func(context.Context, json.RawMessage) (any, error) {
		return e.DeactivateSelectionMode(), nil
	})
	r.Handle(ActionStatus, func(context.Context, json.RawMessage) (any, error) {
		return e.Status(), nil
	})
	r.Handle(ActionShowHints, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, e.ShowHints(ctx)
	})
	r.Handle(ActionHideHints, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, e.HideHints(ctx)
	})
	r.Handle(ActionResetSettings, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return e.ResetSettings(ctx)
	})
	r.Handle(ActionForceCleanup, func(context.Context, json.RawMessage) (any, error) {
		return e.ForceCleanup(), nil
	})
	r.Handle(ActionValidateSession, func(context.Context, json.RawMessage) (any, error) {
		valid, err := e.ValidateSession()
		if err != nil {
			return map[string]bool{"valid": false}, err
		}
		return map[string]bool{"valid": valid}, nil
	})
	r.Handle(ActionSummary, func(context.Context, json.RawMessage) (any, error) {
		sum, ok := e.LastSummary()
		if !ok {
			return nil, errors.New("messaging: no finished session")
		}
		return sum, nil
	})
	return r
}

// Handle registers or replaces the handler for action.
func (r *Router) Handle(action string, fn HandlerFunc) {
	r.handlers[action] = fn
}

// Actions lists registered actions.
func (r *Router) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for req. Handler failures and panics become
// unsuccessful responses.
func (r *Router) Dispatch(ctx context.Context, req Request) (resp Response) {
	fn, ok := r.handlers[req.Action]
	if !ok {
		return Response{Error: fmt.Sprintf("%v: %q", ErrUnknownAction, req.Action)}
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("messaging: handler panic", "action", req.Action, "panic", p)
			resp = Response{Error: fmt.Sprintf("internal error: %v", p)}
		}
	}()
	data, err := fn(ctx, req.Payload)
	if err != nil {
		r.log.Warn("messaging: action failed", "action", req.Action, "error", err)
		return Response{Data: data, Error: err.Error()}
	}
	return Response{Success: true, Data: data}
}
