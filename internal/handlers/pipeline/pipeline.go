// Package pipeline implements the data movement tool: fetching remote
// content into the artifact store, shipping artifacts to remote hosts,
// and slicing stored content.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/handlers/sshx"
	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/tool"
)

// MaxFetchBytes bounds how much a fetch downloads.
const MaxFetchBytes = 32 << 20

// sliceDefaultBytes bounds head and tail when no size is given.
const sliceDefaultBytes = 4096

// Handler moves data between HTTP sources, the artifact store, and
// remote hosts.
type Handler struct {
	artifacts *artifact.Store
	profiles  *profile.Store
}

// New creates the pipeline handler.
func New(artifacts *artifact.Store, profiles *profile.Store) *Handler {
	return &Handler{artifacts: artifacts, profiles: profiles}
}

func (h *Handler) Name() string { return "mcp_pipeline" }
func (h *Handler) Description() string {
	return "Fetch remote content into artifacts and ship artifacts to remote hosts"
}

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"uri": {"type": "string"},
			"remote_path": {"type": "string"},
			"bytes": {"type": "integer"},
			"profile": {"type": "string"},
			"host": {"type": "string"},
			"port": {"type": "integer"},
			"user": {"type": "string"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"tool": "mcp_pipeline.fetch", "url": "https://example.com/report.csv"}
}

func (h *Handler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "fetch":
		return h.fetch(ctx, args)
	case "transfer":
		return h.transfer(ctx, args)
	case "head":
		return h.slice(args, false)
	case "tail":
		return h.slice(args, true)
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"pipeline supports fetch, transfer, head, and tail, not %q", call.Action)
	}
}

func (h *Handler) fetch(ctx context.Context, args tool.Args) (any, error) {
	rawURL, err := args.RequiredString("url")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, tool.InvalidArgs("url_invalid", "building request: %s", err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tool.Timeout("deadline_exceeded", "fetch did not finish in time")
		}
		return nil, tool.Upstream("fetch_request", true, "fetching %s: %s", rawURL, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, tool.Upstream("fetch_status", resp.StatusCode >= 500,
			"fetching %s: %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes+1))
	if err != nil {
		return nil, tool.Upstream("fetch_read", true, "reading response: %s", err.Error())
	}
	if len(data) > MaxFetchBytes {
		return nil, tool.InvalidArgs("fetch_too_large", "response exceeds %d bytes", MaxFetchBytes)
	}

	name := sanitizeName(path.Base(req.URL.Path))
	uri, err := h.artifacts.Write(artifact.KindCalls,
		fmt.Sprintf("fetch/%s/%s", uuid.NewString(), name), data)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"artifact_uri": uri,
		"bytes":        len(data),
		"status_code":  resp.StatusCode,
	}, nil
}

func (h *Handler) transfer(ctx context.Context, args tool.Args) (any, error) {
	uri, err := args.RequiredString("uri")
	if err != nil {
		return nil, err
	}
	remotePath, err := args.RequiredString("remote_path")
	if err != nil {
		return nil, err
	}
	data, err := h.artifacts.Read(uri)
	if err != nil {
		return nil, err
	}
	target, err := sshx.TargetFromArgs(args, h.profiles)
	if err != nil {
		return nil, err
	}

	client, err := sshx.Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, tool.Upstream("ssh_session", true, "opening session: %s", err.Error())
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(data)
	command := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	if err := session.Run(command); err != nil {
		if ctx.Err() != nil {
			return nil, tool.Timeout("deadline_exceeded", "transfer did not finish in time")
		}
		return nil, tool.Upstream("transfer_write", false, "writing remote file: %s", err.Error())
	}

	return map[string]any{
		"uri":         uri,
		"host":        target.Host,
		"remote_path": remotePath,
		"bytes":       len(data),
	}, nil
}

func (h *Handler) slice(args tool.Args, fromEnd bool) (any, error) {
	uri, err := args.RequiredString("uri")
	if err != nil {
		return nil, err
	}
	limit, err := args.Int("bytes", sliceDefaultBytes)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, tool.InvalidArgs("arg_range", "bytes must be positive")
	}
	data, err := h.artifacts.Read(uri)
	if err != nil {
		return nil, err
	}
	total := len(data)
	if total > limit {
		if fromEnd {
			data = data[total-limit:]
		} else {
			data = data[:limit]
		}
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

// sanitizeName maps a URL basename onto the artifact path alphabet.
func sanitizeName(name string) string {
	if name == "" || name == "/" || name == "." {
		return "content.bin"
	}
	var b strings.Builder
	for _, r := range name {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '-' || r == '_' || r == '.'
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "content.bin"
	}
	return out
}

// shellQuote single-quotes a path for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
