// Package localx implements the local machine tool: process execution
// and file access on the gateway host. The whole tool sits behind the
// unsafe-local policy gate.
package localx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"unicode/utf8"

	"github.com/opsgate/opsgate/internal/tool"
)

// Handler runs commands and touches files on the local machine.
type Handler struct{}

// New creates the local handler.
func New() *Handler { return &Handler{} }

func (h *Handler) Name() string { return "mcp_local" }
func (h *Handler) Description() string {
	return "Execute commands and access files on the gateway host"
}

// LocalExecution implements tool.LocalClass.
func (h *Handler) LocalExecution() bool { return true }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"args": {"type": "array", "items": {"type": "string"}},
			"dir": {"type": "string"},
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{"command": "df", "args": []any{"-h"}}
}

func (h *Handler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)
	switch call.Action {
	case "", "exec":
		return h.exec(ctx, args)
	case "read":
		return h.read(args)
	case "write":
		return h.write(args)
	case "list":
		return h.list(args)
	default:
		return nil, tool.InvalidArgs("action_unknown",
			"local supports exec, read, write, and list, not %q", call.Action)
	}
}

func (h *Handler) exec(ctx context.Context, args tool.Args) (any, error) {
	command, err := args.RequiredString("command")
	if err != nil {
		return nil, err
	}
	argv, err := args.StringSlice("args")
	if err != nil {
		return nil, err
	}
	dir, err := args.String("dir")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, command, argv...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case ctx.Err() != nil:
			return nil, tool.Timeout("deadline_exceeded", "command did not finish in time")
		default:
			return nil, tool.Upstream("local_exec", false, "running command: %s", err.Error())
		}
	}

	return map[string]any{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}

func (h *Handler) read(args tool.Args) (any, error) {
	path, err := args.RequiredString("path")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tool.NotFound("file_unknown", "no file at %s", path)
		}
		return nil, tool.Upstream("local_read", false, "reading file: %s", err.Error())
	}
	result := map[string]any{"path": path, "bytes": len(data)}
	if utf8.Valid(data) {
		result["content"] = string(data)
	} else {
		result["content_base64"] = data
	}
	return result, nil
}

func (h *Handler) write(args tool.Args) (any, error) {
	path, err := args.RequiredString("path")
	if err != nil {
		return nil, err
	}
	content, err := args.RequiredString("content")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, tool.Upstream("local_write", false, "creating parent directory: %s", err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, tool.Upstream("local_write", false, "writing file: %s", err.Error())
	}
	return map[string]any{"path": path, "bytes": len(content)}, nil
}

func (h *Handler) list(args tool.Args) (any, error) {
	path, err := args.RequiredString("path")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tool.NotFound("file_unknown", "no directory at %s", path)
		}
		return nil, tool.Upstream("local_read", false, "listing directory: %s", err.Error())
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"name": e.Name(), "dir": e.IsDir()}
		if info, err := e.Info(); err == nil {
			item["bytes"] = info.Size()
			item["modified"] = info.ModTime().UTC()
		}
		out = append(out, item)
	}
	return map[string]any{"path": path, "entries": out, "count": len(out)}, nil
}
