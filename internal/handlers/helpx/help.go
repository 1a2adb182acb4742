// Package helpx implements the read-only introspection surface agents
// use to discover tools, aliases, and example payloads.
package helpx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/tool"
)

// Handler answers list, get, and search queries over the registry.
type Handler struct {
	registry *tool.Registry
}

// New creates the help handler over a frozen registry.
func New(registry *tool.Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) Name() string        { return "mcp_help" }
func (h *Handler) Description() string { return "Discover available tools, aliases, and examples" }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"query": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"query": "runbook"}
}

func (h *Handler) Execute(_ context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "list":
		return h.list(args)
	case "get":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		return h.get(name)
	case "search":
		return h.list(args)
	default:
		return nil, tool.InvalidArgs("action_unknown", "help supports list, get, and search, not %q", call.Action)
	}
}

func (h *Handler) list(args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}

	aliasesByTarget := map[string][]string{}
	for alias, target := range h.registry.Aliases() {
		aliasesByTarget[target] = append(aliasesByTarget[target], alias)
	}
	for _, list := range aliasesByTarget {
		sort.Strings(list)
	}

	var cands []listing.Candidate
	for _, schema := range h.registry.Schemas() {
		entry := map[string]any{
			"name":        schema.Name,
			"description": schema.Description,
		}
		if aliases := aliasesByTarget[schema.Name]; len(aliases) > 0 {
			hints := make([]string, len(aliases))
			for i, a := range aliases {
				hints[i] = fmt.Sprintf("%s -> %s", a, schema.Name)
			}
			entry["aliases"] = hints
		}
		if example := h.exampleFor(schema.Name); example != nil {
			entry["example"] = example
		}
		cands = append(cands, listing.Candidate{
			Text:   schema.Name + " " + schema.Description,
			Fields: map[string]any{"name": schema.Name},
			Item:   entry,
		})
	}
	return listing.Apply(cands, filters), nil
}

func (h *Handler) get(name string) (any, error) {
	handler, err := h.registry.Get(name)
	if err != nil {
		return nil, err
	}

	entry := map[string]any{
		"name":        handler.Name(),
		"description": handler.Description(),
	}
	if schema := handler.Schema(); schema != nil {
		var parsed any
		if jerr := json.Unmarshal(schema, &parsed); jerr == nil {
			entry["input_schema"] = parsed
		}
	}
	var aliases []string
	for alias, target := range h.registry.Aliases() {
		if target == handler.Name() {
			aliases = append(aliases, fmt.Sprintf("%s -> %s", alias, target))
		}
	}
	sort.Strings(aliases)
	if len(aliases) > 0 {
		entry["aliases"] = aliases
	}
	if example := h.exampleFor(handler.Name()); example != nil {
		entry["example"] = example
	}
	return entry, nil
}

func (h *Handler) exampleFor(name string) map[string]any {
	handler, err := h.registry.Get(name)
	if err != nil {
		return nil
	}
	if ex, ok := handler.(tool.Exampler); ok {
		return ex.Example()
	}
	// A generic invocation skeleton keeps every catalog entry concrete.
	return map[string]any{"tool": name, "args": map[string]any{}}
}
