// Package tool defines the request, envelope, and error shapes shared by
// every handler, plus the registry that maps names to handlers.
package tool

import (
	"time"

	"github.com/google/uuid"
)

// Trace identifies a call within a causal chain. TraceID is shared by a
// whole interaction; each call gets its own SpanID.
type Trace struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// ToolCall is the immutable request record as it arrived from the caller.
// Tool may be an alias; InvokedAs preserves it after normalisation.
type ToolCall struct {
	Tool         string
	Action       string
	Args         map[string]any
	TraceID      string
	SpanID       string
	ParentSpanID string
	Deadline     time.Time
}

// ResolvedCall is the output of alias and preset normalisation: the
// canonical tool name, the merged argument map, and the effective deadline.
type ResolvedCall struct {
	Tool      string
	Action    string
	Args      map[string]any
	InvokedAs string
	Trace     Trace
	Deadline  time.Time
	Depth     int
}

// EnsureTrace fills missing trace identifiers. A caller-supplied span
// becomes the parent of the minted one.
func (c *ToolCall) EnsureTrace() Trace {
	t := Trace{
		TraceID:      c.TraceID,
		SpanID:       c.SpanID,
		ParentSpanID: c.ParentSpanID,
	}
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	if t.SpanID == "" {
		t.SpanID = uuid.NewString()
	}
	return t
}

// Envelope is the single shape every tool call returns.
type Envelope struct {
	Success            bool       `json:"success"`
	Tool               string     `json:"tool"`
	Action             string     `json:"action"`
	Result             any        `json:"result,omitempty"`
	DurationMS         *int64     `json:"duration_ms"`
	Trace              Trace      `json:"trace"`
	ArtifactURIContext string     `json:"artifact_uri_context,omitempty"`
	ArtifactURIJSON    string     `json:"artifact_uri_json,omitempty"`
	Error              *ToolError `json:"error,omitempty"`
}

// Field returns a top-level field of the envelope by name, for template
// references of the form steps.ID.FIELD. Result keys are reachable
// directly when Result is an object.
func (e *Envelope) Field(name string) (any, bool) {
	switch name {
	case "success":
		return e.Success, true
	case "tool":
		return e.Tool, true
	case "action":
		return e.Action, true
	case "result":
		return e.Result, true
	case "duration_ms":
		if e.DurationMS == nil {
			return nil, true
		}
		return *e.DurationMS, true
	case "artifact_uri_context":
		return e.ArtifactURIContext, true
	case "artifact_uri_json":
		return e.ArtifactURIJSON, true
	case "trace_id":
		return e.Trace.TraceID, true
	}
	if m, ok := e.Result.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	return nil, false
}
