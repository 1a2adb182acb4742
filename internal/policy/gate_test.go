package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/opsgate/opsgate/internal/tool"
	"github.com/opsgate/opsgate/internal/tool/tooltest"
)

func gateErr(t *testing.T, err error) *tool.ToolError {
	t.Helper()
	var te *tool.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T (%v)", err, err)
	}
	return te
}

func TestGate_ExpiredDeadlineCheckedFirst(t *testing.T) {
	t.Parallel()

	g := &Gate{MaxDepth: DefaultMaxDepth}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Even a call that would also trip the depth limit reports the
	// deadline first.
	call := tool.ResolvedCall{Deadline: now.Add(-time.Second), Depth: 99}
	err := g.Check(call, tooltest.Stub("echo", nil), now)
	te := gateErr(t, err)
	if te.Kind != tool.KindTimeout || te.Code != "deadline_exceeded" {
		t.Errorf("error = %s/%s, want Timeout/deadline_exceeded", te.Kind, te.Code)
	}

	// A deadline equal to now is already expired.
	call = tool.ResolvedCall{Deadline: now}
	if err := g.Check(call, tooltest.Stub("echo", nil), now); err == nil {
		t.Error("deadline at now should be refused")
	}

	// Zero deadline means unbounded.
	if err := g.Check(tool.ResolvedCall{}, tooltest.Stub("echo", nil), now); err != nil {
		t.Errorf("unbounded call refused: %v", err)
	}
}

func TestGate_DepthLimit(t *testing.T) {
	t.Parallel()

	g := &Gate{MaxDepth: 2}
	now := time.Now()

	if err := g.Check(tool.ResolvedCall{Depth: 2}, tooltest.Stub("echo", nil), now); err != nil {
		t.Errorf("depth at the limit refused: %v", err)
	}
	err := g.Check(tool.ResolvedCall{Depth: 3}, tooltest.Stub("echo", nil), now)
	te := gateErr(t, err)
	if te.Kind != tool.KindPolicy || te.Code != "recursion_depth" {
		t.Errorf("error = %s/%s, want Policy/recursion_depth", te.Kind, te.Code)
	}
}

func TestGate_ZeroMaxDepthFallsBackToDefault(t *testing.T) {
	t.Parallel()

	g := &Gate{}
	now := time.Now()

	if err := g.Check(tool.ResolvedCall{Depth: DefaultMaxDepth}, tooltest.Stub("echo", nil), now); err != nil {
		t.Errorf("depth at the default limit refused: %v", err)
	}
	if err := g.Check(tool.ResolvedCall{Depth: DefaultMaxDepth + 1}, tooltest.Stub("echo", nil), now); err == nil {
		t.Error("depth past the default limit allowed")
	}
}

func TestGate_LocalExecution(t *testing.T) {
	t.Parallel()

	now := time.Now()
	local := tooltest.NewLocalStub("local_shell", nil)

	closed := &Gate{MaxDepth: DefaultMaxDepth}
	err := closed.Check(tool.ResolvedCall{}, local, now)
	te := gateErr(t, err)
	if te.Kind != tool.KindPolicy || te.Code != "unsafe_local_disabled" {
		t.Errorf("error = %s/%s, want Policy/unsafe_local_disabled", te.Kind, te.Code)
	}
	if te.Hint == "" {
		t.Error("refusal should carry the enablement hint")
	}

	open := &Gate{UnsafeLocal: true, MaxDepth: DefaultMaxDepth}
	if err := open.Check(tool.ResolvedCall{}, local, now); err != nil {
		t.Errorf("open gate refused local handler: %v", err)
	}

	// Handlers without the local class pass regardless.
	if err := closed.Check(tool.ResolvedCall{}, tooltest.Stub("echo", nil), now); err != nil {
		t.Errorf("non-local handler refused: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("INFRA_UNSAFE_LOCAL", "1")
	t.Setenv("INFRA_ALLOW_SECRET_EXPORT", "")

	g := FromEnv()
	if !g.UnsafeLocal {
		t.Error("INFRA_UNSAFE_LOCAL=1 should open the local gate")
	}
	if g.SecretExportAllowed() {
		t.Error("secret export should stay closed")
	}
	if g.MaxDepth != DefaultMaxDepth {
		t.Errorf("max depth = %d", g.MaxDepth)
	}
}
