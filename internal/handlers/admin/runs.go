package admin

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/state"
	"github.com/opsgate/opsgate/internal/tool"
)

// RunsHandler lists and fetches recorded runbook runs.
type RunsHandler struct {
	state *state.Store
}

// NewRunsHandler wires the runs tool.
func NewRunsHandler(st *state.Store) *RunsHandler {
	return &RunsHandler{state: st}
}

func (h *RunsHandler) Name() string        { return "mcp_runs" }
func (h *RunsHandler) Description() string { return "List and inspect recorded runbook runs" }

func (h *RunsHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"run_id": {"type": "string"},
			"runbook": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *RunsHandler) Example() map[string]any {
	return map[string]any{"runbook": "demo", "limit": 10}
}

func (h *RunsHandler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	if h.state == nil {
		return nil, tool.NotFound("state_unavailable", "the state store is not configured")
	}
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "list":
		return h.list(ctx, args)
	case "get":
		runID, err := args.RequiredString("run_id")
		if err != nil {
			return nil, err
		}
		return h.state.GetRun(ctx, runID)
	default:
		return nil, tool.InvalidArgs("action_unknown", "runs supports list and get, not %q", call.Action)
	}
}

func (h *RunsHandler) list(ctx context.Context, args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}
	runbook, err := args.String("runbook")
	if err != nil {
		return nil, err
	}

	rows, total, err := h.state.ListRuns(ctx, runbook, filters.Limit, filters.Offset)
	if err != nil {
		return nil, tool.Internal("runs_query", "listing runs: %s", err.Error())
	}
	items := make([]any, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	return listing.Page{
		Items: items,
		Meta: listing.Meta{
			Total:   total,
			Limit:   filters.Limit,
			Offset:  filters.Offset,
			HasMore: filters.Offset+len(items) < total,
		},
	}, nil
}
