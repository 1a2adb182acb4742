package admin

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/tool"
)

// IntentHandler routes high-level intents onto runbook plans.
type IntentHandler struct {
	engine *intent.Engine
}

// NewIntentHandler wires the intent tool.
func NewIntentHandler(engine *intent.Engine) *IntentHandler {
	return &IntentHandler{engine: engine}
}

func (h *IntentHandler) Name() string { return "mcp_intent" }
func (h *IntentHandler) Description() string {
	return "Compile and execute high-level intents via the capability catalog"
}

func (h *IntentHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"intent_type": {"type": "string"},
			"input": {"type": "object"},
			"apply": {"type": "boolean"}
		},
		"required": ["intent_type"],
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *IntentHandler) Example() map[string]any {
	return map[string]any{
		"intent_type": "list_k8s",
		"input":       map[string]any{"overlay": "./x"},
	}
}

func (h *IntentHandler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	intentType, err := args.RequiredString("intent_type")
	if err != nil {
		return nil, err
	}
	input, err := args.Map("input")
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}

	switch call.Action {
	case "", "execute":
		apply, err := args.Bool("apply", false)
		if err != nil {
			return nil, err
		}
		return h.engine.Execute(ctx, intentType, input, apply, call.Trace, call.Deadline)
	case "compile":
		return h.engine.CompileIntent(intentType, input)
	case "dry_run":
		return h.engine.DryRun(intentType, input)
	case "explain":
		return h.engine.Explain(intentType, input)
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"intent supports execute, compile, dry_run, and explain, not %q", call.Action)
	}
}
