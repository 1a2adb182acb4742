package intent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/internal/tool"
)

// Capability maps an intent type plus a match predicate onto a plan:
// either a named runbook reference or an inline step sequence.
type Capability struct {
	Name          string         `json:"name"`
	IntentType    string         `json:"intent_type"`
	Description   string         `json:"description,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Match         map[string]any `json:"match,omitempty"`
	Runbook       string         `json:"runbook,omitempty"`
	Steps         []runbook.Step `json:"steps,omitempty"`
	Priority      int            `json:"priority"`
	RequiresApply bool           `json:"requires_apply,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty"`
}

// Validate checks a capability names exactly one plan form.
func (c *Capability) Validate() error {
	if c.Name == "" {
		return tool.InvalidArgs("capability_invalid", "capability name must not be empty")
	}
	if c.IntentType == "" {
		return tool.InvalidArgs("capability_invalid", "capability %q has no intent_type", c.Name)
	}
	hasRef := c.Runbook != ""
	hasInline := len(c.Steps) > 0
	if hasRef == hasInline {
		return tool.InvalidArgs("capability_invalid",
			"capability %q must carry either a runbook reference or inline steps", c.Name)
	}
	return nil
}

// CapCatalog holds capabilities in insertion order, persisted as one
// JSON file. Insertion order is the routing tiebreak after priority.
type CapCatalog struct {
	mu     sync.RWMutex
	path   string
	caps   []*Capability
	byName map[string]*Capability
	now    func() time.Time
}

type capCatalogFile struct {
	Capabilities []*Capability `json:"capabilities"`
}

// LoadCapCatalog reads the catalog at path; a missing file yields an
// empty catalog.
func LoadCapCatalog(path string) (*CapCatalog, error) {
	c := &CapCatalog{
		path:   path,
		byName: make(map[string]*Capability),
		now:    time.Now,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading capability catalog: %w", err)
	}
	var file capCatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing capability catalog %s: %w", path, err)
	}
	for _, cap := range file.Capabilities {
		if err := cap.Validate(); err != nil {
			return nil, fmt.Errorf("capability catalog %s: %w", path, err)
		}
		c.caps = append(c.caps, cap)
		c.byName[cap.Name] = cap
	}
	return c, nil
}

// Get returns a capability by name.
func (c *CapCatalog) Get(name string) (*Capability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cap, ok := c.byName[name]
	if !ok {
		return nil, tool.NotFound("capability_unknown", "no capability named %q", name)
	}
	return cap, nil
}

// All returns capabilities sorted by name for listing.
func (c *CapCatalog) All() []*Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Capability, len(c.caps))
	copy(out, c.caps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InOrder returns capabilities in insertion order for routing.
func (c *CapCatalog) InOrder() []*Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Capability, len(c.caps))
	copy(out, c.caps)
	return out
}

// Upsert validates and stores a capability, then persists the catalog.
func (c *CapCatalog) Upsert(cap *Capability) error {
	if err := cap.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if existing, ok := c.byName[cap.Name]; ok {
		cap.CreatedAt = existing.CreatedAt
		cap.UpdatedAt = now
		for i, item := range c.caps {
			if item.Name == cap.Name {
				c.caps[i] = cap
				break
			}
		}
	} else {
		cap.CreatedAt = now
		cap.UpdatedAt = now
		c.caps = append(c.caps, cap)
	}
	c.byName[cap.Name] = cap
	return c.persistLocked()
}

// Delete removes a capability by name.
func (c *CapCatalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; !ok {
		return tool.NotFound("capability_unknown", "no capability named %q", name)
	}
	delete(c.byName, name)
	for i, item := range c.caps {
		if item.Name == name {
			c.caps = append(c.caps[:i], c.caps[i+1:]...)
			break
		}
	}
	return c.persistLocked()
}

func (c *CapCatalog) persistLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(capCatalogFile{Capabilities: c.caps}, "", "  ")
	if err != nil {
		return tool.Internal("catalog_write", "encoding capability catalog: %s", err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return tool.Internal("catalog_write", "creating catalog dir: %s", err.Error())
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".capabilities-*")
	if err != nil {
		return tool.Internal("catalog_write", "creating temp catalog: %s", err.Error())
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return tool.Internal("catalog_write", "writing catalog: %s", err.Error())
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(name)
		return tool.Internal("catalog_write", "setting catalog mode: %s", err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return tool.Internal("catalog_write", "closing catalog: %s", err.Error())
	}
	if err := os.Rename(name, c.path); err != nil {
		os.Remove(name)
		return tool.Internal("catalog_write", "publishing catalog: %s", err.Error())
	}
	return nil
}
