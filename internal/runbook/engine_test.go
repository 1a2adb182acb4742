package runbook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/tool"
)

// scriptedDispatcher answers each tool name from a fixed script and
// records the calls it received.
type scriptedDispatcher struct {
	results map[string]*tool.Envelope
	calls   []tool.ToolCall
}

func (d *scriptedDispatcher) Execute(_ context.Context, call tool.ToolCall) *tool.Envelope {
	d.calls = append(d.calls, call)
	if env, ok := d.results[call.Tool]; ok {
		return env
	}
	dur := int64(1)
	return &tool.Envelope{
		Success:    true,
		Tool:       call.Tool,
		Action:     call.Action,
		Result:     map[string]any{"echo": call.Args},
		DurationMS: &dur,
		Trace:      tool.Trace{TraceID: call.TraceID, SpanID: "span-" + call.Tool},
	}
}

func newTestEngine(t *testing.T, d Dispatcher) *Engine {
	t.Helper()
	arts, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	return NewEngine(EngineConfig{
		Dispatcher: d,
		Artifacts:  arts,
		Redactor:   security.NewRedactor(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Env:        func(string) string { return "" },
	})
}

func twoStepBook() *Runbook {
	return &Runbook{
		Name:   "restart-web",
		Inputs: []string{"host"},
		Steps: []Step{
			{ID: "check", Tool: "mcp_http", Args: map[string]any{"url": "https://{{ input.host }}/health"}},
			{ID: "report", Tool: "echo", Args: map[string]any{"ok": "{{ steps.check.success }}"}},
		},
	}
}

func TestEngine_RunResolvesTemplatesAcrossSteps(t *testing.T) {
	t.Parallel()

	d := &scriptedDispatcher{}
	e := newTestEngine(t, d)

	parent := tool.Trace{TraceID: "trace-1", SpanID: "parent-span"}
	result, err := e.Run(context.Background(), twoStepBook(), map[string]any{"host": "web1"}, parent, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(d.calls) != 2 {
		t.Fatalf("dispatched %d calls, want 2", len(d.calls))
	}
	if d.calls[0].Args["url"] != "https://web1/health" {
		t.Errorf("step 1 url = %v", d.calls[0].Args["url"])
	}
	if d.calls[1].Args["ok"] != true {
		t.Errorf("step 2 ok = %v (%T), want resolved bool", d.calls[1].Args["ok"], d.calls[1].Args["ok"])
	}

	// Children chain to the parent span under the same trace.
	for i, c := range d.calls {
		if c.TraceID != "trace-1" || c.ParentSpanID != "parent-span" {
			t.Errorf("call %d trace = %s parent = %s", i, c.TraceID, c.ParentSpanID)
		}
	}

	if result["runbook"] != "restart-web" || result["outcome"] != OutcomeOK {
		t.Errorf("result = %v", result)
	}
	if result["run_id"] == "" {
		t.Error("run_id missing")
	}
	steps := result["steps"].([]any)
	if len(steps) != 2 {
		t.Fatalf("steps = %v", steps)
	}
	first := steps[0].(map[string]any)
	if first["id"] != "check" || first["success"] != true {
		t.Errorf("step summary = %v", first)
	}
	if first["artifact_uri_json"] == "" {
		t.Error("step summary should reference the evidence artifact")
	}
}

func TestEngine_RunMissingInput(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &scriptedDispatcher{})
	_, err := e.Run(context.Background(), twoStepBook(), map[string]any{}, tool.Trace{TraceID: "t"}, time.Time{})

	var te *tool.ToolError
	if !errors.As(err, &te) || te.Code != "input_missing" {
		t.Fatalf("error = %v, want InvalidArgs/input_missing", err)
	}
}

func TestEngine_StepFailureCarriesChildError(t *testing.T) {
	t.Parallel()

	childErr := tool.Upstream("pg_statement", false, "relation missing")
	d := &scriptedDispatcher{results: map[string]*tool.Envelope{
		"mcp_http": {Success: false, Tool: "mcp_http", Error: childErr},
	}}
	e := newTestEngine(t, d)

	_, err := e.Run(context.Background(), twoStepBook(), map[string]any{"host": "web1"}, tool.Trace{TraceID: "t"}, time.Time{})

	var te *tool.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T", err)
	}
	if te.Kind != tool.KindUpstream || te.Code != "step_failed" {
		t.Fatalf("error = %s/%s, want Upstream/step_failed", te.Kind, te.Code)
	}
	if te.Details["step_id"] != "check" {
		t.Errorf("details step_id = %v", te.Details["step_id"])
	}
	if te.Details["run_id"] == "" {
		t.Error("details run_id missing")
	}
	if te.Details["child_error"] != childErr {
		t.Errorf("details child_error = %v", te.Details["child_error"])
	}
	if len(d.calls) != 1 {
		t.Errorf("dispatched %d calls, want the run to stop after the failure", len(d.calls))
	}
}

func TestEngine_ContinueOnError(t *testing.T) {
	t.Parallel()

	d := &scriptedDispatcher{results: map[string]*tool.Envelope{
		"flaky": {Success: false, Tool: "flaky", Error: tool.Upstream("fetch_status", true, "502")},
	}}
	e := newTestEngine(t, d)

	rb := &Runbook{
		Name: "tolerant",
		Steps: []Step{
			{ID: "try", Tool: "flaky", ContinueOnError: true},
			{ID: "after", Tool: "echo"},
		},
	}
	result, err := e.Run(context.Background(), rb, map[string]any{}, tool.Trace{TraceID: "t"}, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(d.calls) != 2 {
		t.Fatalf("dispatched %d calls, want both steps", len(d.calls))
	}
	if result["outcome"] != OutcomeOK {
		t.Errorf("outcome = %v", result["outcome"])
	}
	steps := result["steps"].([]any)
	if steps[0].(map[string]any)["success"] != false {
		t.Error("failed step should be reported unsuccessful")
	}
}

func TestEngine_TemplateErrorNamesTheStep(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &scriptedDispatcher{})
	rb := &Runbook{
		Name: "broken",
		Steps: []Step{
			{ID: "bad", Tool: "echo", Args: map[string]any{"v": "{{ input.missing }}"}},
		},
	}
	_, err := e.Run(context.Background(), rb, map[string]any{}, tool.Trace{TraceID: "t"}, time.Time{})

	var te *tool.ToolError
	if !errors.As(err, &te) || te.Code != "template_missing_input" {
		t.Fatalf("error = %v, want template_missing_input", err)
	}
	if te.Details["step_id"] != "bad" {
		t.Errorf("details = %v, want step_id bad", te.Details)
	}
}

func TestEngine_StepTimeoutTightensDeadline(t *testing.T) {
	t.Parallel()

	d := &scriptedDispatcher{}
	e := newTestEngine(t, d)

	rb := &Runbook{
		Name: "timed",
		Steps: []Step{
			{ID: "fast", Tool: "echo", TimeoutMS: 50},
			{ID: "free", Tool: "echo"},
		},
	}
	outer := time.Now().Add(time.Hour)
	if _, err := e.Run(context.Background(), rb, map[string]any{}, tool.Trace{TraceID: "t"}, outer); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !d.calls[0].Deadline.Before(outer) {
		t.Error("step timeout should tighten the outer deadline")
	}
	if !d.calls[1].Deadline.Equal(outer) {
		t.Errorf("unbounded step deadline = %v, want the outer deadline", d.calls[1].Deadline)
	}
}

func TestEngine_CancelledContextAborts(t *testing.T) {
	t.Parallel()

	d := &scriptedDispatcher{}
	e := newTestEngine(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, twoStepBook(), map[string]any{"host": "web1"}, tool.Trace{TraceID: "t"}, time.Time{})
	var te *tool.ToolError
	if !errors.As(err, &te) || te.Kind != tool.KindTimeout {
		t.Fatalf("error = %v, want Timeout kind", err)
	}
	if len(d.calls) != 0 {
		t.Error("no step should run after cancellation")
	}
}
