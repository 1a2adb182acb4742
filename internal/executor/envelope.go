package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/tool"
)

// displayName is the name the caller used, kept on the envelope even
// when an alias was resolved.
func displayName(call tool.ResolvedCall) string {
	if call.InvokedAs != "" {
		return call.InvokedAs
	}
	return call.Tool
}

// wrapError turns a handler or gate error into a failure envelope.
// Kind and code pass through untouched; details gain the trace id and
// are redacted.
func (e *Executor) wrapError(call tool.ResolvedCall, duration *int64, err error) *tool.Envelope {
	te := tool.AsToolError(err)
	te = te.WithDetail("trace_id", call.Trace.TraceID)
	if te.Details != nil {
		te.Details = e.redactor.RedactValue(te.Details).(map[string]any)
	}

	env := &tool.Envelope{
		Success:    false,
		Tool:       displayName(call),
		Action:     call.Action,
		DurationMS: duration,
		Trace:      call.Trace,
		Error:      te,
	}

	if uri, ok := e.writeContextDoc(call, te); ok {
		env.ArtifactURIContext = uri
	}
	return env
}

// wrapResult builds the success envelope: normalise, redact, spill
// oversized values, and externalise the whole result when the envelope
// would exceed the size bound. rawSecrets skips the redaction walk; the
// caller has already checked the handler's secret-carrier claim against
// the export gate.
func (e *Executor) wrapResult(call tool.ResolvedCall, duration int64, result any, rawSecrets bool) (*tool.Envelope, []string) {
	var minted []string

	normalized, err := normalizeJSON(result)
	if err != nil {
		return e.wrapError(call, &duration, tool.Internal("result_encode", "handler result is not JSON-marshalable: %s", err.Error())), nil
	}
	redacted := normalized
	if !rawSecrets {
		redacted = e.redactor.RedactValue(normalized)
	}

	spilled, uris := e.spillLarge(call, redacted)
	minted = append(minted, uris...)

	env := &tool.Envelope{
		Success:    true,
		Tool:       displayName(call),
		Action:     call.Action,
		Result:     spilled,
		DurationMS: &duration,
		Trace:      call.Trace,
	}

	serialized, err := json.Marshal(env)
	if err != nil {
		return e.wrapError(call, &duration, tool.Internal("result_encode", "envelope is not serialisable: %s", err.Error())), minted
	}
	if len(serialized) > e.maxEnvelope {
		uri, werr := e.artifacts.WriteJSON(artifact.KindCalls, mintCallPath(call.Trace, "result.json"), spilled)
		if werr != nil {
			return e.wrapError(call, &duration, werr), minted
		}
		minted = append(minted, uri)
		if e.metrics != nil {
			e.metrics.ArtifactWritten()
		}
		env.Result = map[string]any{
			"truncated":         true,
			"artifact_uri_json": uri,
		}
		env.ArtifactURIJSON = uri
		if ctxURI, ok := e.writeContextDoc(call, nil); ok {
			env.ArtifactURIContext = ctxURI
		}
	}
	return env, minted
}

// spillLarge replaces string leaves longer than the inline bound with an
// artifact reference carrying a digest, a preview head, and a tail.
// The spill count per envelope is capped; once the cap is hit remaining
// oversized values are truncated in place.
func (e *Executor) spillLarge(call tool.ResolvedCall, v any) (any, []string) {
	var uris []string
	spills := 0

	var walk func(v any) any
	walk = func(v any) any {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any, len(val))
			for k, item := range val {
				out[k] = walk(item)
			}
			return out
		case []any:
			out := make([]any, len(val))
			for i, item := range val {
				out[i] = walk(item)
			}
			return out
		case string:
			if len(val) <= e.maxInline {
				return val
			}
			if spills >= e.maxSpills {
				return val[:e.maxInline] + "...(truncated)"
			}
			spills++
			name := fmt.Sprintf("spill-%d.txt", spills)
			uri, err := e.artifacts.Write(artifact.KindCalls, mintCallPath(call.Trace, name), []byte(val))
			if err != nil {
				e.logger.Warn("spill write failed, truncating inline", "tool", call.Tool, "error", err)
				return val[:e.maxInline] + "...(truncated)"
			}
			uris = append(uris, uri)
			if e.metrics != nil {
				e.metrics.ArtifactWritten()
			}
			sum := sha256.Sum256([]byte(val))
			return map[string]any{
				"spilled":      true,
				"artifact_uri": uri,
				"sha256":       hex.EncodeToString(sum[:]),
				"bytes":        len(val),
				"preview":      val[:previewLen(val)],
				"tail":         val[len(val)-tailLen(val):],
			}
		default:
			return v
		}
	}
	return walk(v), uris
}

const (
	spillPreviewBytes = 512
	spillTailBytes    = 256
)

func previewLen(s string) int { return min(len(s), spillPreviewBytes) }
func tailLen(s string) int    { return min(len(s), spillTailBytes) }

// writeContextDoc persists a small human-readable diagnostic next to the
// call's artifacts. Best effort; failures only log.
func (e *Executor) writeContextDoc(call tool.ResolvedCall, te *tool.ToolError) (string, bool) {
	doc := fmt.Sprintf("tool: %s\naction: %s\ntrace_id: %s\nspan_id: %s\n",
		call.Tool, call.Action, call.Trace.TraceID, call.Trace.SpanID)
	if te != nil {
		doc += fmt.Sprintf("error: %s/%s\nmessage: %s\n", te.Kind, te.Code, e.redactor.Redact(te.Message))
		if te.Hint != "" {
			doc += "hint: " + te.Hint + "\n"
		}
	} else {
		doc += "note: result externalised, see result.json\n"
	}
	uri, err := e.artifacts.Write(artifact.KindCalls, mintCallPath(call.Trace, "call.context"), []byte(doc))
	if err != nil {
		e.logger.Debug("context doc write skipped", "tool", call.Tool, "error", err)
		return "", false
	}
	if e.metrics != nil {
		e.metrics.ArtifactWritten()
	}
	return uri, true
}

// normalizeJSON round-trips a handler result through encoding/json so
// redaction and spilling always walk plain maps, slices, and scalars.
func normalizeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case map[string]any, []any, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// summarize reduces a result to its shape for the audit record: the
// JSON type, the sorted top-level keys, and their count.
func summarize(result any) map[string]any {
	if result == nil {
		return nil
	}
	switch val := result.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 16 {
			keys = keys[:16]
		}
		return map[string]any{"type": "object", "keys": keys, "key_count": len(val)}
	case []any:
		return map[string]any{"type": "array", "key_count": len(val)}
	case string:
		return map[string]any{"type": "string", "key_count": 0}
	case bool:
		return map[string]any{"type": "bool", "key_count": 0}
	case float64:
		return map[string]any{"type": "number", "key_count": 0}
	default:
		return map[string]any{"type": fmt.Sprintf("%T", val), "key_count": 0}
	}
}
