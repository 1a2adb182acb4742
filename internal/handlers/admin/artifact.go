package admin

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/listing"
	"github.com/opsgate/opsgate/internal/tool"
)

// headDefaultBytes bounds how much of an artifact head returns.
const headDefaultBytes = 4096

// ArtifactHandler reads and enumerates stored artifacts.
type ArtifactHandler struct {
	store *artifact.Store
}

// NewArtifactHandler wires the artifact tool.
func NewArtifactHandler(store *artifact.Store) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

func (h *ArtifactHandler) Name() string        { return "mcp_artifact" }
func (h *ArtifactHandler) Description() string { return "Read and list stored artifacts" }

func (h *ArtifactHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"uri": {"type": "string"},
			"kind": {"type": "string"},
			"prefix": {"type": "string"},
			"bytes": {"type": "integer"},
			"query": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *ArtifactHandler) Example() map[string]any {
	return map[string]any{"kind": "runs"}
}

func (h *ArtifactHandler) Execute(_ context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "list":
		return h.list(args)
	case "get":
		return h.get(args)
	case "head":
		return h.head(args)
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"artifact supports list, get, and head, not %q", call.Action)
	}
}

func (h *ArtifactHandler) list(args tool.Args) (any, error) {
	filters, err := listing.ParseFilters(args)
	if err != nil {
		return nil, err
	}
	kind, err := args.String("kind")
	if err != nil {
		return nil, err
	}
	prefix, err := args.String("prefix")
	if err != nil {
		return nil, err
	}

	kinds := []string{artifact.KindRuns, artifact.KindCalls, artifact.KindEvidence}
	if kind != "" {
		kinds = []string{kind}
	}
	var cands []listing.Candidate
	for _, k := range kinds {
		entries, err := h.store.List(k, prefix)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			cands = append(cands, listing.Candidate{
				Text:   entry.URI,
				Fields: map[string]any{"kind": entry.Kind},
				Item:   entry,
			})
		}
	}
	return listing.Apply(cands, filters), nil
}

func (h *ArtifactHandler) get(args tool.Args) (any, error) {
	uri, err := args.RequiredString("uri")
	if err != nil {
		return nil, err
	}
	data, err := h.store.Read(uri)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"uri": uri, "bytes": len(data)}
	if utf8.Valid(data) {
		result["content"] = string(data)
	} else {
		result["content_base64"] = data
	}
	return result, nil
}

func (h *ArtifactHandler) head(args tool.Args) (any, error) {
	uri, err := args.RequiredString("uri")
	if err != nil {
		return nil, err
	}
	limit, err := args.Int("bytes", headDefaultBytes)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, tool.InvalidArgs("arg_range", "bytes must be positive")
	}
	data, err := h.store.Read(uri)
	if err != nil {
		return nil, err
	}
	total := len(data)
	if total > limit {
		data = data[:limit]
	}
	result := map[string]any{
		"uri":       uri,
		"bytes":     total,
		"truncated": total > limit,
	}
	if utf8.Valid(data) {
		result["content"] = string(data)
	} else {
		result["content_base64"] = data
	}
	return result, nil
}
