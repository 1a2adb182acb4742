package admin

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/tool"
)

// CapabilityHandler manages the capability catalog.
type CapabilityHandler struct {
	catalog *intent.CapCatalog
}

// NewCapabilityHandler wires the capability tool.
func NewCapabilityHandler(catalog *intent.CapCatalog) *CapabilityHandler {
	return &CapabilityHandler{catalog: catalog}
}

func (h *CapabilityHandler) Name() string        { return "mcp_capability" }
func (h *CapabilityHandler) Description() string { return "Manage intent routing capabilities" }

func (h *CapabilityHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"capability": {"type": "object"},
			"query": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

func (h *CapabilityHandler) Execute(_ context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "list":
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
			"capability supports list, get, upsert, and delete, not %q", call.Action)
	}
}

func (h *CapabilityHandler) list(args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}
	var cands []listing.Candidate
	for _, cap := range h.catalog.All() {
		cands = append(cands, listing.Candidate{
			Text: cap.Name + " " + cap.IntentType + " " + cap.Description,
			Tags: cap.Tags,
			Fields: map[string]any{
				"name":        cap.Name,
				"intent_type": cap.IntentType,
				"priority":    cap.Priority,
			},
			Item: cap,
		})
	}
	return listing.Apply(cands, filters), nil
}

func (h *CapabilityHandler) upsert(args tool.Args) (any, error) {
	doc, err := args.Map("capability")
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, tool.InvalidArgs("arg_missing", "argument \"capability\" is required")
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, tool.InvalidArgs("capability_invalid", "capability is not encodable: %s", err.Error())
	}
	var cap intent.Capability
	if err := json.Unmarshal(encoded, &cap); err != nil {
		return nil, tool.InvalidArgs("capability_invalid", "capability does not parse: %s", err.Error())
	}
	if err := h.catalog.Upsert(&cap); err != nil {
		return nil, err
	}
	return map[string]any{"name": cap.Name, "updated_at": cap.UpdatedAt}, nil
}
