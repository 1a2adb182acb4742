package tool

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Schema is a tool's name paired with its JSON Schema, returned by
// Registry.Schemas for the transport's tools/list reply.
type Schema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Registry holds registered handlers plus the alias and preset tables.
// It is instance-based for testability. After Freeze the read path takes
// no locks beyond the RWMutex read side and all mutation fails.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Handler
	aliases map[string]string
	presets map[string]map[string]any
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Handler),
		aliases: make(map[string]string),
		presets: make(map[string]map[string]any),
	}
}

// Register adds a handler under its canonical name.
func (r *Registry) Register(h Handler) error {
	name := strings.TrimSpace(h.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = h
	return nil
}

// Alias maps a display name onto a canonical tool name. The target must
// already be registered so resolution can never dangle.
func (r *Registry) Alias(alias, canonical string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.tools[canonical]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrAliasTarget, alias, canonical)
	}
	if _, exists := r.tools[alias]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, alias)
	}
	r.aliases[alias] = canonical
	return nil
}

// Preset records a default argument overlay for (canonical, action).
// Presets fill absent keys only; caller-supplied keys always win.
func (r *Registry) Preset(canonical, action string, defaults map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.tools[canonical]; !ok {
		return fmt.Errorf("%w: %s", ErrAliasTarget, canonical)
	}
	r.presets[presetKey(canonical, action)] = cloneMap(defaults)
	return nil
}

// Freeze makes the registry immutable. Called once after startup wiring.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Canonical resolves an alias to its canonical name. Resolution is
// idempotent: a canonical name resolves to itself.
func (r *Registry) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[name]; ok {
		return target
	}
	return name
}

// Get returns the handler for name (after alias resolution) or a
// NotFound/tool_unknown error carrying a nearest-name hint.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical := name
	if target, ok := r.aliases[name]; ok {
		canonical = target
	}
	h, ok := r.tools[canonical]
	if !ok {
		err := NotFound("tool_unknown", "unknown tool: %s", name)
		if hint := r.suggestLocked(name); hint != "" {
			err = err.WithHint(fmt.Sprintf("did you mean %q?", hint))
		}
		return nil, err
	}
	return h, nil
}

// PresetFor returns the preset overlay for (canonical, action), falling
// back to the action-independent preset when no action-specific one exists.
func (r *Registry) PresetFor(canonical, action string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.presets[presetKey(canonical, action)]; ok {
		return p
	}
	if action != "" {
		if p, ok := r.presets[presetKey(canonical, "")]; ok {
			return p
		}
	}
	return nil
}

// Names returns all canonical tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Aliases returns a copy of the alias table, keyed by alias.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for a, c := range r.aliases {
		out[a] = c
	}
	return out
}

// Schemas returns every registered tool's schema sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for name, h := range r.tools {
		schemas = append(schemas, Schema{
			Name:        name,
			Description: h.Description(),
			Schema:      h.Schema(),
		})
	}
	slices.SortFunc(schemas, func(a, b Schema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schemas
}

func presetKey(canonical, action string) string {
	return canonical + "\x00" + action
}
