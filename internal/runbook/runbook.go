// Package runbook defines named multi-step procedures and the engine
// that executes them sequentially with evidence capture.
package runbook

import (
	"regexp"
	"time"

	"github.com/opsgate/opsgate/internal/tool"
)

// Step is one tool invocation inside a runbook. Args may carry template
// expressions resolved against the run context.
type Step struct {
	ID              string         `json:"id"`
	Tool            string         `json:"tool"`
	Action          string         `json:"action,omitempty"`
	Args            map[string]any `json:"args,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty"`
	TimeoutMS       int64          `json:"timeout_ms,omitempty"`
}

// Runbook is a named, ordered sequence of steps.
type Runbook struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Inputs      []string  `json:"inputs,omitempty"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Run outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
)

// StepOutcome records one executed step: the step's tool and action, the
// child envelope, and the evidence artifact if one was written. Engine.Run
// does not fill in Call; the executor resolves the child call internally
// and does not hand the ResolvedCall back.
type StepOutcome struct {
	ID          string            `json:"id"`
	Call        tool.ResolvedCall `json:"-"`
	Tool        string            `json:"tool"`
	Action      string            `json:"action,omitempty"`
	Envelope    *tool.Envelope    `json:"envelope"`
	EvidenceURI string            `json:"evidence_uri,omitempty"`
}

// RunRecord is the frozen account of one runbook invocation.
type RunRecord struct {
	RunID      string         `json:"run_id"`
	Runbook    string         `json:"runbook_name"`
	Input      map[string]any `json:"input"`
	Steps      []StepOutcome  `json:"steps"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    string         `json:"outcome"`
}

var stepRefPattern = regexp.MustCompile(`\{\{\s*\??\s*steps\.([A-Za-z_][A-Za-z0-9_-]*)`)

// Validate checks structural invariants: a name, at least one step,
// unique step ids, and step references that only point backwards.
func (r *Runbook) Validate() error {
	if r.Name == "" {
		return tool.InvalidArgs("runbook_invalid", "runbook name must not be empty")
	}
	if len(r.Steps) == 0 {
		return tool.InvalidArgs("runbook_invalid", "runbook %q has no steps", r.Name)
	}

	seen := make(map[string]bool, len(r.Steps))
	for i, s := range r.Steps {
		if s.ID == "" {
			return tool.InvalidArgs("runbook_invalid", "runbook %q step %d has no id", r.Name, i)
		}
		if s.Tool == "" {
			return tool.InvalidArgs("runbook_invalid", "runbook %q step %q has no tool", r.Name, s.ID)
		}
		if seen[s.ID] {
			return tool.InvalidArgs("runbook_invalid", "runbook %q has duplicate step id %q", r.Name, s.ID)
		}
		for _, ref := range stepRefs(s.Args) {
			if !seen[ref] {
				return tool.InvalidArgs("runbook_invalid",
					"runbook %q step %q references step %q which does not appear earlier", r.Name, s.ID, ref)
			}
		}
		seen[s.ID] = true
	}
	return nil
}

// stepRefs collects step ids referenced by templates anywhere in a value
// tree.
func stepRefs(v any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range stepRefPattern.FindAllStringSubmatch(val, -1) {
				refs = append(refs, m[1])
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
