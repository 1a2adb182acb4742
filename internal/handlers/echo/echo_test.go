package echo

import (
	"context"
	"testing"

	"github.com/opsgate/opsgate/internal/tool"
)

func TestEcho_ReturnsArgs(t *testing.T) {
	t.Parallel()

	h := New()
	args := map[string]any{"text": "hello", "n": 3}
	out, err := h.Execute(context.Background(), tool.ResolvedCall{Tool: "echo", Args: args})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := out.(map[string]any)
	if result["text"] != "hello" || result["n"] != 3 {
		t.Errorf("result = %v", result)
	}
}

func TestEcho_NilArgs(t *testing.T) {
	t.Parallel()

	out, err := New().Execute(context.Background(), tool.ResolvedCall{Tool: "echo"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result := out.(map[string]any); len(result) != 0 {
		t.Errorf("result = %v, want empty object", result)
	}
}
