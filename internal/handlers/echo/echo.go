// Package echo implements the echo tool used by examples and smoke
// tests: it returns its arguments unchanged.
package echo

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/tool"
)

// Handler returns its arguments as the result.
type Handler struct{}

// New creates the echo handler.
func New() *Handler { return &Handler{} }

func (h *Handler) Name() string        { return "echo" }
func (h *Handler) Description() string { return "Return the given arguments unchanged" }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"text": "hello"}
}

func (h *Handler) Execute(_ context.Context, call tool.ResolvedCall) (any, error) {
	if call.Args == nil {
		return map[string]any{}, nil
	}
	return call.Args, nil
}
