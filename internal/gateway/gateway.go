// Package gateway exposes the tool registry over MCP on stdio:
// initialize, tools/list, tools/call. Every call is answered with the
// envelope serialised as a single text content block; transport errors
// are reserved for protocol faults.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opsgate/opsgate/internal/executor"
	"github.com/opsgate/opsgate/internal/tool"
)

// Reserved argument keys consumed by the transport, never forwarded to
// handlers.
const (
	argAction   = "action"
	argTraceID  = "trace_id"
	argDeadline = "deadline_ms"
)

// Gateway serves the executor over stdio.
type Gateway struct {
	exec    *executor.Executor
	logger  *slog.Logger
	version string
	now     func() time.Time

	// One in-flight call at a time.
	mu sync.Mutex
}

// New builds the gateway over a wired executor.
func New(exec *executor.Executor, version string, logger *slog.Logger) *Gateway {
	return &Gateway{exec: exec, logger: logger, version: version, now: time.Now}
}

// Serve runs the stdio server until stdin closes.
func (g *Gateway) Serve() error {
	s := server.NewMCPServer("opsgate", g.version,
		server.WithToolCapabilities(false),
	)

	registry := g.exec.Registry()
	schemaByName := map[string]tool.Schema{}
	for _, entry := range registry.Schemas() {
		schemaByName[entry.Name] = entry
		s.AddTool(mcp.NewToolWithRawSchema(entry.Name, entry.Description, entry.Schema), g.handle)
	}
	// Aliases are callable under their own names with the target schema.
	for alias, target := range registry.Aliases() {
		entry, ok := schemaByName[target]
		if !ok {
			continue
		}
		s.AddTool(mcp.NewToolWithRawSchema(alias, entry.Description, entry.Schema), g.handle)
	}

	g.logger.Info("gateway serving on stdio", "tools", len(schemaByName))
	return server.ServeStdio(s)
}

func (g *Gateway) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	call := g.callFrom(req.Params.Name, req.GetArguments())
	env := g.exec.Execute(ctx, call)

	data, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("envelope serialisation failed", "tool", call.Tool, "error", err)
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// callFrom splits transport-reserved keys out of the argument map.
func (g *Gateway) callFrom(name string, args map[string]any) tool.ToolCall {
	call := tool.ToolCall{Tool: name, Args: map[string]any{}}
	for key, value := range args {
		switch key {
		case argAction:
			if s, ok := value.(string); ok {
				call.Action = s
			}
		case argTraceID:
			if s, ok := value.(string); ok {
				call.TraceID = s
			}
		case argDeadline:
			if ms, ok := asMillis(value); ok && ms > 0 {
				call.Deadline = g.now().Add(time.Duration(ms) * time.Millisecond)
			}
		default:
			call.Args[key] = value
		}
	}
	return call
}

func asMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
