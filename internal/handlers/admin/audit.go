package admin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/state"
	"github.com/opsgate/opsgate/internal/tool"
)

// AuditHandler queries the audit index.
type AuditHandler struct {
	state *state.Store
}

// NewAuditHandler wires the audit tool.
func NewAuditHandler(st *state.Store) *AuditHandler {
	return &AuditHandler{state: st}
}

func (h *AuditHandler) Name() string        { return "mcp_audit" }
func (h *AuditHandler) Description() string { return "Query the indexed audit trail" }

func (h *AuditHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"trace_id": {"type": "string"},
			"tool": {"type": "string"},
			"status": {"type": "string", "enum": ["ok", "error"]},
			"since": {"type": "string"},
			"until": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *AuditHandler) Example() map[string]any {
	return map[string]any{"status": "error", "limit": 20}
}

func (h *AuditHandler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	if h.state == nil {
		return nil, tool.NotFound("state_unavailable", "the state store is not configured")
	}
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "query":
		return h.query(ctx, args)
	default:
		return nil, tool.InvalidArgs("action_unknown", "audit supports query, not %q", call.Action)
	}
}

func (h *AuditHandler) query(ctx context.Context, args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}

	var f state.AuditFilter
	if f.TraceID, err = args.String("trace_id"); err != nil {
		return nil, err
	}
	if f.Tool, err = args.String("tool"); err != nil {
		return nil, err
	}
	if f.Status, err = args.String("status"); err != nil {
		return nil, err
	}
	if f.Since, err = timeArg(args, "since"); err != nil {
		return nil, err
	}
	if f.Until, err = timeArg(args, "until"); err != nil {
		return nil, err
	}

	records, total, err := h.state.QueryAudit(ctx, f, filters.Limit, filters.Offset)
	if err != nil {
		return nil, tool.Internal("audit_query", "querying audit index: %s", err.Error())
	}
	items := make([]any, len(records))
	for i, rec := range records {
		items[i] = rec
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

func timeArg(args tool.Args, key string) (time.Time, error) {
	raw, err := args.String(key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, tool.InvalidArgs("arg_type", "argument %q must be an RFC 3339 timestamp", key)
	}
	return ts, nil
}
