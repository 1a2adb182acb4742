// Package profile stores named connection and credential documents
// under the profiles directory. Get redacts secret values and Export
// returns them raw; the store itself does not consult the secret-export
// gate. Writes take a per-profile exclusive lock.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/tool"
)

// Profile is one stored document.
type Profile struct {
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists profiles as profiles/<name>.json.
type Store struct {
	dir      string
	redactor *security.Redactor
	now      func() time.Time
}

// NewStore creates the store, ensuring the directory exists.
func NewStore(dir string, redactor *security.Redactor) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating profiles dir: %w", err)
	}
	return &Store{dir: dir, redactor: redactor, now: time.Now}, nil
}

func checkName(name string) error {
	if name == "" {
		return tool.InvalidArgs("profile_name", "profile name must not be empty")
	}
	for _, r := range name {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '-' || r == '_' || r == '.'
		if !ok {
			return tool.InvalidArgs("profile_name", "profile name %q contains %q", name, string(r))
		}
	}
	if strings.HasPrefix(name, ".") {
		return tool.InvalidArgs("profile_name", "profile name must not start with a dot")
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// lock takes the per-profile exclusive lock. The caller must invoke the
// returned release function.
func (s *Store) lock(name string) (func(), error) {
	lockPath := filepath.Join(s.dir, name+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, tool.Conflict("profile_locked", "profile %q is locked by another operation", name)
		}
		return nil, tool.Internal("profile_lock", "taking profile lock: %s", err.Error())
	}
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}

// Get returns a profile with secret values redacted.
func (s *Store) Get(name string) (*Profile, error) {
	p, err := s.load(name)
	if err != nil {
		return nil, err
	}
	p.Data = s.redactor.RedactValue(p.Data).(map[string]any)
	return p, nil
}

// Export returns the profile unredacted. Callers must hold the
// secret-export permission; the gate check happens in the handler.
func (s *Store) Export(name string) (*Profile, error) {
	return s.load(name)
}

func (s *Store) load(name string) (*Profile, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tool.NotFound("profile_unknown", "no profile named %q", name)
		}
		return nil, tool.Internal("profile_read", "reading profile: %s", err.Error())
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, tool.Internal("profile_read", "parsing profile %q: %s", name, err.Error())
	}
	return &p, nil
}

// Set creates or replaces a profile under the per-profile lock.
func (s *Store) Set(name string, data map[string]any) (*Profile, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	release, err := s.lock(name)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now().UTC()
	p := &Profile{Name: name, Data: data, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.load(name); err == nil {
		p.CreatedAt = existing.CreatedAt
	}

	encoded, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, tool.Internal("profile_write", "encoding profile: %s", err.Error())
	}
	tmp, err := os.CreateTemp(s.dir, ".profile-*")
	if err != nil {
		return nil, tool.Internal("profile_write", "creating temp profile: %s", err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, tool.Internal("profile_write", "writing profile: %s", err.Error())
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, tool.Internal("profile_write", "setting profile mode: %s", err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, tool.Internal("profile_write", "closing profile: %s", err.Error())
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return nil, tool.Internal("profile_write", "publishing profile: %s", err.Error())
	}

	// Register literal secrets so they are scrubbed from any log line.
	registerSecrets(s.redactor, data, false)

	out := *p
	out.Data = s.redactor.RedactValue(p.Data).(map[string]any)
	return &out, nil
}

// Delete removes a profile under the per-profile lock.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	release, err := s.lock(name)
	if err != nil {
		return err
	}
	defer release()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return tool.NotFound("profile_unknown", "no profile named %q", name)
		}
		return tool.Internal("profile_write", "removing profile: %s", err.Error())
	}
	return nil
}

// Names returns all profile names sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, tool.Internal("profile_read", "listing profiles: %s", err.Error())
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// registerSecrets walks profile data and registers string values under
// secret-named keys as redaction literals.
func registerSecrets(r *security.Redactor, data map[string]any, underSecret bool) {
	for k, v := range data {
		secret := underSecret || r.SecretKey(k)
		switch val := v.(type) {
		case string:
			if secret {
				r.AddLiteral(val)
			}
		case map[string]any:
			registerSecrets(r, val, secret)
		}
	}
}
