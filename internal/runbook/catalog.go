package runbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opsgate/opsgate/internal/tool"
)

// Catalog holds the named runbooks, persisted as a single JSON file.
// Insertion order is preserved for stable tie-breaking.
type Catalog struct {
	mu    sync.RWMutex
	path  string
	books []*Runbook
	byName map[string]*Runbook
	now   func() time.Time
}

// catalogFile is the on-disk shape.
type catalogFile struct {
	Runbooks []*Runbook `json:"runbooks"`
}

// LoadCatalog reads the catalog at path. A missing file yields an empty
// catalog; upserts will create it.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		byName: make(map[string]*Runbook),
		now:    time.Now,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading runbook catalog: %w", err)
	}
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing runbook catalog %s: %w", path, err)
	}
	for _, rb := range file.Runbooks {
		if err := rb.Validate(); err != nil {
			return nil, fmt.Errorf("runbook catalog %s: %w", path, err)
		}
		c.books = append(c.books, rb)
		c.byName[rb.Name] = rb
	}
	return c, nil
}

// Get returns the runbook with the given name.
func (c *Catalog) Get(name string) (*Runbook, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rb, ok := c.byName[name]
	if !ok {
		return nil, tool.NotFound("runbook_unknown", "no runbook named %q", name)
	}
	return rb, nil
}

// All returns the runbooks sorted by name, creation order breaking ties.
func (c *Catalog) All() []*Runbook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Runbook, len(c.books))
	copy(out, c.books)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Upsert validates and stores a runbook, stamping created_at on first
// insert and updated_at always, then persists the catalog.
func (c *Catalog) Upsert(rb *Runbook) error {
	if err := rb.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if existing, ok := c.byName[rb.Name]; ok {
		rb.CreatedAt = existing.CreatedAt
		rb.UpdatedAt = now
		for i, b := range c.books {
			if b.Name == rb.Name {
				c.books[i] = rb
				break
			}
		}
	} else {
		rb.CreatedAt = now
		rb.UpdatedAt = now
		c.books = append(c.books, rb)
	}
	c.byName[rb.Name] = rb
	return c.persistLocked()
}

// Delete removes a runbook by name and persists the catalog.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; !ok {
		return tool.NotFound("runbook_unknown", "no runbook named %q", name)
	}
	delete(c.byName, name)
	for i, b := range c.books {
		if b.Name == name {
			c.books = append(c.books[:i], c.books[i+1:]...)
			break
		}
	}
	return c.persistLocked()
}

func (c *Catalog) persistLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(catalogFile{Runbooks: c.books}, "", "  ")
	if err != nil {
		return tool.Internal("catalog_write", "encoding runbook catalog: %s", err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return tool.Internal("catalog_write", "creating catalog dir: %s", err.Error())
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".runbooks-*")
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
