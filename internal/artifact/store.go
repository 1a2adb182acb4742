// Package artifact implements the content store behind artifact:// URIs.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opsgate/opsgate/internal/tool"
)

// Scheme is the URI scheme for stored blobs.
const Scheme = "artifact://"

// Kinds of artifacts the store accepts.
const (
	KindRuns     = "runs"
	KindCalls    = "calls"
	KindEvidence = "evidence"
)

var validKinds = map[string]bool{
	KindRuns:     true,
	KindCalls:    true,
	KindEvidence: true,
}

// Entry describes a stored artifact for listing.
type Entry struct {
	URI      string    `json:"uri"`
	Kind     string    `json:"kind"`
	Path     string    `json:"path"`
	Bytes    int64     `json:"bytes"`
	Modified time.Time `json:"modified"`
}

// Store persists immutable blobs under root/<kind>/<path>. Blobs are
// never mutated after creation; overwrites are refused.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating kind directories.
func NewStore(dir string) (*Store, error) {
	for kind := range validKinds {
		if err := os.MkdirAll(filepath.Join(dir, kind), 0o700); err != nil {
			return nil, fmt.Errorf("creating artifact dir: %w", err)
		}
	}
	return &Store{root: dir}, nil
}

// URI builds the artifact URI for (kind, path).
func URI(kind, path string) string {
	return Scheme + kind + "/" + path
}

// ParseURI splits an artifact URI into kind and path.
func ParseURI(uri string) (kind, path string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", tool.InvalidArgs("artifact_uri", "not an artifact URI: %s", uri)
	}
	kind, path, ok = strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", "", tool.InvalidArgs("artifact_uri", "artifact URI missing path: %s", uri)
	}
	if !validKinds[kind] {
		return "", "", tool.InvalidArgs("artifact_uri", "unknown artifact kind: %s", kind)
	}
	if err := checkPath(path); err != nil {
		return "", "", err
	}
	return kind, path, nil
}

// checkPath rejects traversal and non URL-safe components.
func checkPath(path string) error {
	if strings.HasPrefix(path, "/") {
		return tool.InvalidArgs("artifact_path", "artifact path must be relative: %s", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." || part == ".." {
			return tool.InvalidArgs("artifact_path", "invalid artifact path component in %s", path)
		}
		for _, r := range part {
			ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
				r == '-' || r == '_' || r == '.'
			if !ok {
				return tool.InvalidArgs("artifact_path", "artifact path component %q contains %q", part, string(r))
			}
		}
	}
	return nil
}

// Write stores data at (kind, path) and returns the minted URI.
// Existing artifacts are never overwritten.
func (s *Store) Write(kind, path string, data []byte) (string, error) {
	if !validKinds[kind] {
		return "", tool.InvalidArgs("artifact_uri", "unknown artifact kind: %s", kind)
	}
	if err := checkPath(path); err != nil {
		return "", err
	}

	full := filepath.Join(s.root, kind, filepath.FromSlash(path))
	if _, err := os.Stat(full); err == nil {
		return "", tool.Conflict("artifact_exists", "artifact already exists: %s", URI(kind, path))
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return "", tool.Internal("artifact_write", "creating artifact parent: %s", err.Error())
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return "", tool.Internal("artifact_write", "creating temp file: %s", err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", tool.Internal("artifact_write", "writing artifact: %s", err.Error())
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", tool.Internal("artifact_write", "setting artifact mode: %s", err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", tool.Internal("artifact_write", "closing artifact: %s", err.Error())
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", tool.Internal("artifact_write", "publishing artifact: %s", err.Error())
	}
	return URI(kind, path), nil
}

// WriteJSON marshals v and stores it at (kind, path).
func (s *Store) WriteJSON(kind, path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", tool.Internal("artifact_encode", "encoding artifact: %s", err.Error())
	}
	return s.Write(kind, path, data)
}

// Read returns the content behind an artifact URI.
func (s *Store) Read(uri string) ([]byte, error) {
	kind, path, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, kind, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tool.NotFound("artifact_unknown", "no artifact at %s", uri)
		}
		return nil, tool.Internal("artifact_read", "reading artifact: %s", err.Error())
	}
	return data, nil
}

// List enumerates artifacts of a kind, optionally under a path prefix,
// sorted by path.
func (s *Store) List(kind, prefix string) ([]Entry, error) {
	if !validKinds[kind] {
		return nil, tool.InvalidArgs("artifact_uri", "unknown artifact kind: %s", kind)
	}
	base := filepath.Join(s.root, kind)
	var entries []Entry
	err := filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		entries = append(entries, Entry{
			URI:      URI(kind, rel),
			Kind:     kind,
			Path:     rel,
			Bytes:    info.Size(),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, tool.Internal("artifact_list", "listing artifacts: %s", err.Error())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
