package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *ToolError
		kind      ErrorKind
		retryable bool
	}{
		{"invalid args", InvalidArgs("arg_missing", "missing %q", "host"), KindInvalidArgs, false},
		{"not found", NotFound("tool_unknown", "no such tool"), KindNotFound, false},
		{"permission", Permission("denied", "nope"), KindPermission, false},
		{"upstream retryable", Upstream("ssh_dial", true, "dial failed"), KindUpstream, true},
		{"upstream final", Upstream("pg_statement", false, "syntax error"), KindUpstream, false},
		{"timeout", Timeout("deadline_exceeded", "too slow"), KindTimeout, true},
		{"conflict", Conflict("artifact_exists", "already there"), KindConflict, true},
		{"internal", Internal("handler_panicked", "boom"), KindInternal, false},
		{"policy", Policy("unsafe_local_disabled", "gated"), KindPolicy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("retryable = %t, want %t", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestToolError_ErrorString(t *testing.T) {
	t.Parallel()

	err := NotFound("profile_unknown", "no profile named %q", "prod")
	want := `NotFound/profile_unknown: no profile named "prod"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestToolError_WithHintDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := Policy("unsafe_local_disabled", "local tools are off")
	hinted := base.WithHint("set INFRA_UNSAFE_LOCAL=1 to enable")

	if base.Hint != "" {
		t.Errorf("base hint mutated to %q", base.Hint)
	}
	if hinted.Hint == "" {
		t.Error("hinted copy lost the hint")
	}
}

func TestToolError_WithDetailCopiesMap(t *testing.T) {
	t.Parallel()

	base := Upstream("step_failed", false, "step s1 failed").WithDetail("step_id", "s1")
	child := base.WithDetail("run_id", "r1")

	if _, ok := base.Details["run_id"]; ok {
		t.Error("base details mutated by child WithDetail")
	}
	if child.Details["step_id"] != "s1" || child.Details["run_id"] != "r1" {
		t.Errorf("child details = %v, want step_id and run_id", child.Details)
	}
}

func TestAsToolError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		kind ErrorKind
		code string
	}{
		{"passthrough", NotFound("runbook_unknown", "missing"), KindNotFound, "runbook_unknown"},
		{"wrapped", fmt.Errorf("outer: %w", Conflict("profile_locked", "busy")), KindConflict, "profile_locked"},
		{"deadline", context.DeadlineExceeded, KindTimeout, "deadline_exceeded"},
		{"cancelled", context.Canceled, KindTimeout, "cancelled"},
		{"plain", errors.New("disk full"), KindInternal, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			te := AsToolError(tt.in)
			if te.Kind != tt.kind || te.Code != tt.code {
				t.Errorf("AsToolError = %s/%s, want %s/%s", te.Kind, te.Code, tt.kind, tt.code)
			}
		})
	}

	if AsToolError(nil) != nil {
		t.Error("AsToolError(nil) should be nil")
	}
}
