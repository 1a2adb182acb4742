package admin

import (
	"context"
	"encoding/json"

	"github.com/opsgate/opsgate/internal/policy"
	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/tool"
)

// ProfileHandler manages named connection profiles. Reads are redacted;
// export returns raw values and is gated.
type ProfileHandler struct {
	store *profile.Store
	gate  *policy.Gate
}

// NewProfileHandler wires the profile tool.
func NewProfileHandler(store *profile.Store, gate *policy.Gate) *ProfileHandler {
	return &ProfileHandler{store: store, gate: gate}
}

func (h *ProfileHandler) Name() string        { return "mcp_profile" }
func (h *ProfileHandler) Description() string { return "Manage named connection profiles" }

func (h *ProfileHandler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"data": {"type": "object"}
		},
		"additionalProperties": true
	}`)
}

// CarriesSecrets implements tool.SecretCarrier: export results stay raw
// once the secret-export gate has allowed them.
func (h *ProfileHandler) CarriesSecrets(call tool.ResolvedCall) bool {
	return call.Action == "export"
}

func (h *ProfileHandler) Execute(_ context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "list":
		names, err := h.store.Names()
		if err != nil {
			return nil, err
		}
		return map[string]any{"profiles": names, "count": len(names)}, nil
	case "get":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		return h.store.Get(name)
	case "set":
		return h.set(args)
	case "delete":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		if err := h.store.Delete(name); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": name}, nil
	case "export":
		name, err := args.RequiredString("name")
		if err != nil {
			return nil, err
		}
		if !h.gate.SecretExportAllowed() {
			return nil, tool.Policy("secret_export_disabled",
				"profile export is disabled").WithHint("set INFRA_ALLOW_SECRET_EXPORT=1 to enable raw exports")
		}
		return h.store.Export(name)
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"profile supports list, get, set, delete, and export, not %q", call.Action)
	}
}

func (h *ProfileHandler) set(args tool.Args) (any, error) {
	name, err := args.RequiredString("name")
	if err != nil {
		return nil, err
	}
	data, err := args.Map("data")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, tool.InvalidArgs("arg_missing", "argument \"data\" is required")
	}
	return h.store.Set(name, data)
}
