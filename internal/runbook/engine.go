package runbook

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/executor"
	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/state"
	"github.com/opsgate/opsgate/internal/template"
	"github.com/opsgate/opsgate/internal/tool"
)

// Dispatcher executes one tool call and always returns an envelope.
type Dispatcher interface {
	Execute(ctx context.Context, call tool.ToolCall) *tool.Envelope
}

// Engine executes runbooks step by step. Every child call goes through
// the dispatcher so policy, redaction, and audit apply uniformly.
type Engine struct {
	dispatch  Dispatcher
	artifacts *artifact.Store
	state     *state.Store
	redactor  *security.Redactor
	logger    *slog.Logger
	env       func(string) string
	now       func() time.Time
}

// EngineConfig wires an Engine. State may be nil; run indexing is then
// skipped.
type EngineConfig struct {
	Dispatcher Dispatcher
	Artifacts  *artifact.Store
	State      *state.Store
	Redactor   *security.Redactor
	Logger     *slog.Logger
	Env        func(string) string
	Now        func() time.Time
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		dispatch:  cfg.Dispatcher,
		artifacts: cfg.Artifacts,
		state:     cfg.State,
		redactor:  cfg.Redactor,
		logger:    cfg.Logger,
		env:       cfg.Env,
		now:       cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Run executes rb with the given input. The parent trace chains child
// spans to the runbook call; the deadline caps every step. The returned
// map is the runbook envelope's result; a step failure surfaces as
// Upstream/step_failed carrying the child error.
func (e *Engine) Run(ctx context.Context, rb *Runbook, input map[string]any, parent tool.Trace, deadline time.Time) (map[string]any, error) {
	for _, key := range rb.Inputs {
		if _, ok := input[key]; !ok {
			return nil, tool.InvalidArgs("input_missing", "runbook %q requires input %q", rb.Name, key)
		}
	}

	runID := uuid.NewString()
	record := &RunRecord{
		RunID:     runID,
		Runbook:   rb.Name,
		Input:     input,
		StartedAt: e.now().UTC(),
	}

	known := make(map[string]bool, len(rb.Steps))
	for _, s := range rb.Steps {
		known[s.ID] = true
	}
	stepEnvs := make(map[string]*tool.Envelope, len(rb.Steps))

	for _, step := range rb.Steps {
		if err := ctx.Err(); err != nil {
			record.Outcome = OutcomeAborted
			e.persist(ctx, record)
			return nil, tool.AsToolError(err).WithDetail("run_id", runID)
		}

		tmplCtx := template.Context{
			Input:      input,
			Steps:      stepEnvs,
			KnownSteps: known,
			Env:        e.env,
			Redactor:   e.redactor,
		}
		resolvedArgs, err := template.ResolveValue(step.Args, tmplCtx)
		if err != nil {
			record.Outcome = OutcomeFailed
			e.persist(ctx, record)
			return nil, tool.AsToolError(err).
				WithDetail("step_id", step.ID).
				WithDetail("run_id", runID)
		}
		args, _ := resolvedArgs.(map[string]any)

		childDeadline := deadline
		if step.TimeoutMS > 0 {
			stepDeadline := e.now().Add(time.Duration(step.TimeoutMS) * time.Millisecond)
			if childDeadline.IsZero() || stepDeadline.Before(childDeadline) {
				childDeadline = stepDeadline
			}
		}

		child := tool.ToolCall{
			Tool:         step.Tool,
			Action:       step.Action,
			Args:         args,
			TraceID:      parent.TraceID,
			ParentSpanID: parent.SpanID,
			Deadline:     childDeadline,
		}

		env := e.dispatch.Execute(executor.WithDepth(ctx), child)
		stepEnvs[step.ID] = env

		outcome := StepOutcome{
			ID:       step.ID,
			Tool:     step.Tool,
			Action:   step.Action,
			Envelope: env,
		}
		outcome.EvidenceURI = e.writeEvidence(runID, step.ID, env)
		record.Steps = append(record.Steps, outcome)

		if !env.Success && !step.ContinueOnError {
			record.Outcome = OutcomeFailed
			record.FinishedAt = e.now().UTC()
			e.persist(ctx, record)
			return nil, (&tool.ToolError{
				Kind:    tool.KindUpstream,
				Code:    "step_failed",
				Message: "step " + step.ID + " failed",
				Details: map[string]any{
					"step_id":     step.ID,
					"run_id":      runID,
					"child_error": env.Error,
				},
			})
		}
	}

	record.Outcome = OutcomeOK
	record.FinishedAt = e.now().UTC()
	e.persist(ctx, record)

	steps := make([]any, 0, len(record.Steps))
	for _, s := range record.Steps {
		entry := map[string]any{
			"id":      s.ID,
			"success": s.Envelope.Success,
		}
		if s.Envelope.DurationMS != nil {
			entry["duration_ms"] = *s.Envelope.DurationMS
		}
		if s.Envelope.ArtifactURIJSON != "" {
			entry["artifact_uri_json"] = s.Envelope.ArtifactURIJSON
		} else if s.EvidenceURI != "" {
			entry["artifact_uri_json"] = s.EvidenceURI
		}
		steps = append(steps, entry)
	}
	return map[string]any{
		"run_id":  runID,
		"runbook": rb.Name,
		"outcome": record.Outcome,
		"steps":   steps,
	}, nil
}

// writeEvidence captures the child envelope as an artifact. When the
// write fails the outcome carries the explicit none marker instead.
func (e *Engine) writeEvidence(runID, stepID string, env *tool.Envelope) string {
	uri, err := e.artifacts.WriteJSON(artifact.KindEvidence, runID+"/step-"+stepID+".json", env)
	if err != nil {
		e.logger.Warn("evidence write failed", "run_id", runID, "step_id", stepID, "error", err)
		return "none"
	}
	return uri
}

// persist freezes the run record: the artifact copy is authoritative,
// the state index is best effort.
func (e *Engine) persist(ctx context.Context, record *RunRecord) {
	if record.FinishedAt.IsZero() {
		record.FinishedAt = e.now().UTC()
	}
	if _, err := e.artifacts.WriteJSON(artifact.KindRuns, record.Runbook+"/"+record.RunID+"/record.json", record); err != nil {
		e.logger.Warn("run record write failed", "run_id", record.RunID, "error", err)
	}
	if e.state != nil {
		if err := e.state.PutRun(ctx, record.RunID, record.Runbook, record.Outcome,
			record.StartedAt, record.FinishedAt, record); err != nil {
			e.logger.Warn("run index write failed", "run_id", record.RunID, "error", err)
		}
	}
}
