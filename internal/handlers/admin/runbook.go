// Package admin implements the management tools over runbooks,
// capabilities, profiles, artifacts, runs, and the audit index.
package admin

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/internal/tool"
)

// RunbookHandler exposes run, list, get, upsert, and delete over the
// runbook catalog. Run delegates to the engine, which re-enters the
// executor for every step.
type RunbookHandler struct {
	catalog *runbook.Catalog
	engine  *runbook.Engine
}

// NewRunbookHandler wires the runbook tool.
func NewRunbookHandler(catalog *runbook.Catalog, engine *runbook.Engine) *RunbookHandler {
	return &RunbookHandler{catalog: catalog, engine: engine}
}

func (h *RunbookHandler) Name() string        { return "mcp_runbook" }
func (h *RunbookHandler) Description() string { return "Run and manage multi-step runbooks" }

func (h *RunbookHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"input": {"type": "object"},
			"runbook": {"type": "object"},
			"query": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *RunbookHandler) Example() map[string]any {
	return map[string]any{"name": "demo", "input": map[string]any{"who": "ada"}}
}

func (h *RunbookHandler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "run":
		return h.run(ctx, call)
	case "list":
		return h.list(args)
	case "get":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		return h.catalog.Get(name)
	case "upsert":
		return h.upsert(args)
	case "delete":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		if err := h.catalog.Delete(name); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": name}, nil
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"runbook supports run, list, get, upsert, and delete, not %q", call.Action)
	}
}

func (h *RunbookHandler) run(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	name, err := args.RequiredString("name")
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
	rb, err := h.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return h.engine.Run(ctx, rb, input, call.Trace, call.Deadline)
}

func (h *RunbookHandler) list(args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}
	var cands []listing.Candidate
	for _, rb := range h.catalog.All() {
		cands = append(cands, listing.Candidate{
			Text: rb.Name + " " + rb.Description,
			Tags: rb.Tags,
			Fields: map[string]any{
				"name":       rb.Name,
				"step_count": len(rb.Steps),
			},
			Item: map[string]any{
				"name":        rb.Name,
				"description": rb.Description,
				"tags":        rb.Tags,
				"inputs":      rb.Inputs,
				"step_count":  len(rb.Steps),
			},
		})
	}
	return listing.Apply(cands, filters), nil
}

func (h *RunbookHandler) upsert(args tool.Args) (any, error) {
	doc, err := args.Map("runbook")
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, tool.InvalidArgs("arg_missing", "argument \"runbook\" is required")
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, tool.InvalidArgs("runbook_invalid", "runbook is not encodable: %s", err.Error())
	}
	var rb runbook.Runbook
	if err := json.Unmarshal(encoded, &rb); err != nil {
		return nil, tool.InvalidArgs("runbook_invalid", "runbook does not parse: %s", err.Error())
	}
	if err := h.catalog.Upsert(&rb); err != nil {
		return nil, err
	}
	return map[string]any{"name": rb.Name, "updated_at": rb.UpdatedAt}, nil
}
