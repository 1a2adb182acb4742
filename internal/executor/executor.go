// Package executor is the single dispatch path every tool invocation
// passes through: normalise, gate, dispatch, wrap, audit.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/policy"
	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/tool"
)

// Default capture bounds, overridable through Config.
const (
	DefaultMaxEnvelopeBytes = 256 * 1024
	DefaultMaxInlineBytes   = 16 * 1024
	DefaultMaxSpills        = 20
)

// argPreset is stripped from arguments before dispatch; it selects a
// preset overlay and is meaningless to handlers.
const argPreset = "preset"

// Metrics receives call observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveCall(toolName, outcome string, d time.Duration)
	AuditFailure()
	ArtifactWritten()
}

// Config wires an Executor.
type Config struct {
	Registry  *tool.Registry
	Gate      *policy.Gate
	Audit     audit.Sink
	Artifacts *artifact.Store
	Redactor  *security.Redactor
	Logger    *slog.Logger
	Metrics   Metrics

	// MaxEnvelopeBytes bounds the serialised envelope; larger results
	// are externalised as artifacts. Defaults to 256 KiB.
	MaxEnvelopeBytes int

	// MaxInlineBytes bounds individual string values inside a result;
	// larger ones are spilled to artifacts. Defaults to 16 KiB.
	MaxInlineBytes int

	// MaxSpills caps per-envelope spill artifacts. Defaults to 20.
	MaxSpills int

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Executor owns the audit sink and artifact store handles for the
// duration of each call.
type Executor struct {
	registry  *tool.Registry
	gate      *policy.Gate
	audit     audit.Sink
	artifacts *artifact.Store
	redactor  *security.Redactor
	logger    *slog.Logger
	metrics   Metrics

	maxEnvelope int
	maxInline   int
	maxSpills   int
	now         func() time.Time
}

// New builds an Executor from cfg, applying defaults.
func New(cfg Config) *Executor {
	e := &Executor{
		registry:    cfg.Registry,
		gate:        cfg.Gate,
		audit:       cfg.Audit,
		artifacts:   cfg.Artifacts,
		redactor:    cfg.Redactor,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxEnvelope: cfg.MaxEnvelopeBytes,
		maxInline:   cfg.MaxInlineBytes,
		maxSpills:   cfg.MaxSpills,
		now:         cfg.Now,
	}
	if e.maxEnvelope <= 0 {
		e.maxEnvelope = DefaultMaxEnvelopeBytes
	}
	if e.maxInline <= 0 {
		e.maxInline = DefaultMaxInlineBytes
	}
	if e.maxSpills <= 0 {
		e.maxSpills = DefaultMaxSpills
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Gate exposes the policy gate to handlers that enforce export rules.
func (e *Executor) Gate() *policy.Gate { return e.gate }

// Artifacts exposes the artifact store to composite handlers.
func (e *Executor) Artifacts() *artifact.Store { return e.artifacts }

// Registry exposes the frozen registry for introspection surfaces.
func (e *Executor) Registry() *tool.Registry { return e.registry }

type depthKey struct{}

// Depth reports the composite re-entry depth recorded in ctx.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// WithDepth marks ctx as one re-entry level deeper. Composite handlers
// pass the returned context into child Execute calls.
func WithDepth(ctx context.Context) context.Context {
	return context.WithValue(ctx, depthKey{}, Depth(ctx)+1)
}

// Execute runs the full pipeline for one call and always returns exactly
// one envelope. The envelope is withheld (replaced with an audit
// failure) when the audit record cannot be written.
func (e *Executor) Execute(ctx context.Context, call tool.ToolCall) *tool.Envelope {
	trace := call.EnsureTrace()

	resolved := e.resolve(call, trace, Depth(ctx))

	env, dispatched, artifacts := e.dispatch(ctx, resolved)

	outcome := audit.StatusOK
	if !env.Success {
		outcome = audit.StatusError
	}
	if e.metrics != nil {
		var d time.Duration
		if env.DurationMS != nil {
			d = time.Duration(*env.DurationMS) * time.Millisecond
		}
		e.metrics.ObserveCall(resolved.Tool, outcome, d)
	}

	rec := audit.Record{
		Status:        outcome,
		Tool:          resolved.Tool,
		Action:        resolved.Action,
		TraceID:       trace.TraceID,
		SpanID:        trace.SpanID,
		ParentSpanID:  trace.ParentSpanID,
		InvokedAs:     resolved.InvokedAs,
		Input:         resolved.Args,
		ResultSummary: summarize(env.Result),
		ArtifactURIs:  artifacts,
	}
	if env.DurationMS != nil {
		rec.DurationMS = *env.DurationMS
	}
	if env.Error != nil {
		rec.ErrorKind = string(env.Error.Kind)
		rec.ErrorCode = env.Error.Code
	}
	if !dispatched {
		rec.ResultSummary = nil
	}

	if err := e.audit.Append(rec); err != nil {
		e.logger.Error("audit append failed, withholding envelope",
			"tool", resolved.Tool, "trace_id", trace.TraceID, "error", err)
		if e.metrics != nil {
			e.metrics.AuditFailure()
		}
		return e.failure(call, trace, tool.Internal("audit_failed", "audit record could not be written"))
	}

	return env
}

// resolve applies the alias and preset tables and strips executor
// reserved argument keys. Resolution is idempotent.
func (e *Executor) resolve(call tool.ToolCall, trace tool.Trace, depth int) tool.ResolvedCall {
	canonical := e.registry.Canonical(call.Tool)
	invokedAs := ""
	if canonical != call.Tool {
		invokedAs = call.Tool
	}

	args := tool.FillMissing(call.Args, e.registry.PresetFor(canonical, call.Action))
	if args == nil {
		args = map[string]any{}
	}
	delete(args, argPreset)

	return tool.ResolvedCall{
		Tool:      canonical,
		Action:    call.Action,
		Args:      args,
		InvokedAs: invokedAs,
		Trace:     trace,
		Deadline:  call.Deadline,
		Depth:     depth,
	}
}

// dispatch runs gate, lookup, schema validation, and the handler, then
// wraps the outcome. It reports whether the handler was entered and the
// artifact URIs minted while wrapping.
func (e *Executor) dispatch(ctx context.Context, call tool.ResolvedCall) (env *tool.Envelope, dispatched bool, artifacts []string) {
	h, err := e.registry.Get(call.Tool)
	if err != nil {
		return e.wrapError(call, nil, err), false, nil
	}

	if err := e.gate.Check(call, h, e.now()); err != nil {
		return e.wrapError(call, nil, err), false, nil
	}

	if err := tool.ValidateArgs(h.Schema(), call.Args); err != nil {
		return e.wrapError(call, nil, err), false, nil
	}

	callCtx := ctx
	if !call.Deadline.IsZero() {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithDeadline(ctx, call.Deadline)
		defer cancel()
	}

	start := e.now()
	result, err := e.invoke(callCtx, h, call)
	duration := e.now().Sub(start).Milliseconds()

	if err != nil {
		return e.wrapError(call, &duration, err), true, nil
	}
	rawSecrets := false
	if sc, ok := h.(tool.SecretCarrier); ok {
		rawSecrets = sc.CarriesSecrets(call) && e.gate.SecretExportAllowed()
	}
	env, artifacts = e.wrapResult(call, duration, result, rawSecrets)
	return env, true, artifacts
}

// invoke calls the handler with panic containment. A panicking handler
// yields Internal/handler_panicked and never crashes the gateway.
func (e *Executor) invoke(ctx context.Context, h tool.Handler, call tool.ResolvedCall) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked", "tool", call.Tool, "panic", r)
			result = nil
			err = tool.Internal("handler_panicked", "handler for %s terminated abnormally", call.Tool)
		}
	}()
	return h.Execute(ctx, call)
}

// failure builds a bare failure envelope outside the normal wrap path.
func (e *Executor) failure(call tool.ToolCall, trace tool.Trace, te *tool.ToolError) *tool.Envelope {
	return &tool.Envelope{
		Success: false,
		Tool:    call.Tool,
		Action:  call.Action,
		Trace:   trace,
		Error:   te,
	}
}

func mintCallPath(trace tool.Trace, name string) string {
	id := trace.SpanID
	if id == "" {
		id = uuid.NewString()
	}
	return trace.TraceID + "/" + id + "/" + name
}
