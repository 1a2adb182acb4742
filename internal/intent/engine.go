package intent

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/internal/tool"
)

// Engine routes intents to capabilities and delegates execution to the
// runbook engine. It never executes tools directly.
type Engine struct {
	caps     *CapCatalog
	runbooks *runbook.Catalog
	runner   *runbook.Engine
}

// NewEngine builds an intent engine over the two catalogs and the
// runbook engine.
func NewEngine(caps *CapCatalog, runbooks *runbook.Catalog, runner *runbook.Engine) *Engine {
	return &Engine{caps: caps, runbooks: runbooks, runner: runner}
}

// Route selects the highest-priority capability whose intent type and
// predicate match. Ties break by catalog insertion order.
func (e *Engine) Route(intentType string, input map[string]any) (*Capability, error) {
	candidates := e.caps.InOrder()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	for _, cap := range candidates {
		if cap.IntentType != intentType {
			continue
		}
		ok, err := Matches(cap.Match, input)
		if err != nil {
			return nil, err
		}
		if ok {
			return cap, nil
		}
	}
	return nil, tool.NotFound("intent_unroutable", "no capability matches intent %q", intentType)
}

// Compile resolves a capability's plan to a concrete runbook. Inline
// plans synthesise a transient runbook named intent:<type>.
func (e *Engine) Compile(cap *Capability) (*runbook.Runbook, error) {
	if cap.Runbook != "" {
		return e.runbooks.Get(cap.Runbook)
	}
	rb := &runbook.Runbook{
		Name:        "intent:" + cap.IntentType,
		Description: cap.Description,
		Steps:       cap.Steps,
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return rb, nil
}

// Plan describes a compiled intent for compile, dry_run, and gated
// execute responses.
type Plan struct {
	Capability    string         `json:"capability"`
	IntentType    string         `json:"intent_type"`
	Runbook       string         `json:"runbook"`
	Steps         []runbook.Step `json:"steps"`
	RequiresApply bool           `json:"requires_apply"`
}

func plan(cap *Capability, rb *runbook.Runbook) Plan {
	return Plan{
		Capability:    cap.Name,
		IntentType:    cap.IntentType,
		Runbook:       rb.Name,
		Steps:         rb.Steps,
		RequiresApply: cap.RequiresApply,
	}
}

// CompileIntent routes and compiles without executing.
func (e *Engine) CompileIntent(intentType string, input map[string]any) (Plan, error) {
	cap, err := e.Route(intentType, input)
	if err != nil {
		return Plan{}, err
	}
	rb, err := e.Compile(cap)
	if err != nil {
		return Plan{}, err
	}
	return plan(cap, rb), nil
}

var inputRefPattern = regexp.MustCompile(`\{\{\s*([?]?)\s*input\.([A-Za-z_][A-Za-z0-9_-]*)`)

// DryRun compiles the plan and checks that every required input and
// every non-optional input template reference is satisfiable.
func (e *Engine) DryRun(intentType string, input map[string]any) (map[string]any, error) {
	cap, err := e.Route(intentType, input)
	if err != nil {
		return nil, err
	}
	rb, err := e.Compile(cap)
	if err != nil {
		return nil, err
	}

	var missing []string
	seen := map[string]bool{}
	require := func(key string) {
		if _, ok := input[key]; !ok && !seen[key] {
			seen[key] = true
			missing = append(missing, key)
		}
	}
	for _, key := range rb.Inputs {
		require(key)
	}
	for _, step := range rb.Steps {
		for _, ref := range inputRefsIn(step.Args) {
			require(ref)
		}
	}
	sort.Strings(missing)

	return map[string]any{
		"plan":          plan(cap, rb),
		"valid":         len(missing) == 0,
		"missing_input": missing,
	}, nil
}

func inputRefsIn(v any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range inputRefPattern.FindAllStringSubmatch(val, -1) {
				if m[1] == "?" {
					continue
				}
				refs = append(refs, m[2])
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return refs
}

// Explain reports which capability an intent routes to and why.
func (e *Engine) Explain(intentType string, input map[string]any) (map[string]any, error) {
	cap, err := e.Route(intentType, input)
	if err != nil {
		return nil, err
	}
	rb, err := e.Compile(cap)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"capability":  cap.Name,
		"intent_type": cap.IntentType,
		"priority":    cap.Priority,
		"match":       cap.Match,
		"runbook":     rb.Name,
		"step_count":  len(rb.Steps),
	}, nil
}

// Execute routes, compiles, and delegates to the runbook engine. A
// capability with requires_apply returns the compiled plan unexecuted
// unless apply is set.
func (e *Engine) Execute(ctx context.Context, intentType string, input map[string]any, apply bool, parent tool.Trace, deadline time.Time) (map[string]any, error) {
	cap, err := e.Route(intentType, input)
	if err != nil {
		return nil, err
	}
	rb, err := e.Compile(cap)
	if err != nil {
		return nil, err
	}

	if cap.RequiresApply && !apply {
		return map[string]any{
			"applied": false,
			"plan":    plan(cap, rb),
		}, nil
	}

	result, err := e.runner.Run(ctx, rb, input, parent, deadline)
	if err != nil {
		return nil, err
	}
	result["applied"] = true
	result["capability"] = cap.Name
	return result, nil
}
