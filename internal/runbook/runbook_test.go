package runbook

import (
	"errors"
	"strings"
	"testing"

	"github.com/opsgate/opsgate/internal/tool"
)

func TestRunbook_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rb      Runbook
		wantErr string
	}{
		{
			name: "valid",
			rb: Runbook{
				Name: "restart-web",
				Steps: []Step{
					{ID: "check", Tool: "mcp_http", Args: map[string]any{"url": "https://x/health"}},
					{ID: "report", Tool: "echo", Args: map[string]any{"status": "{{ steps.check.status_code }}"}},
				},
			},
		},
		{
			name:    "empty name",
			rb:      Runbook{Steps: []Step{{ID: "a", Tool: "echo"}}},
			wantErr: "name must not be empty",
		},
		{
			name:    "no steps",
			rb:      Runbook{Name: "empty"},
			wantErr: "has no steps",
		},
		{
			name: "step without id",
			rb: Runbook{
				Name:  "bad",
				Steps: []Step{{Tool: "echo"}},
			},
			wantErr: "has no id",
		},
		{
			name: "step without tool",
			rb: Runbook{
				Name:  "bad",
				Steps: []Step{{ID: "a"}},
			},
			wantErr: "has no tool",
		},
		{
			name: "duplicate step id",
			rb: Runbook{
				Name: "bad",
				Steps: []Step{
					{ID: "a", Tool: "echo"},
					{ID: "a", Tool: "echo"},
				},
			},
			wantErr: "duplicate step id",
		},
		{
			name: "forward reference",
			rb: Runbook{
				Name: "bad",
				Steps: []Step{
					{ID: "first", Tool: "echo", Args: map[string]any{"v": "{{ steps.second.result }}"}},
					{ID: "second", Tool: "echo"},
				},
			},
			wantErr: "does not appear earlier",
		},
		{
			name: "self reference",
			rb: Runbook{
				Name: "bad",
				Steps: []Step{
					{ID: "only", Tool: "echo", Args: map[string]any{"v": "{{ steps.only.result }}"}},
				},
			},
			wantErr: "does not appear earlier",
		},
		{
			name: "reference nested in arrays",
			rb: Runbook{
				Name: "bad",
				Steps: []Step{
					{ID: "a", Tool: "echo", Args: map[string]any{
						"list": []any{map[string]any{"v": "{{ steps.ghost.success }}"}},
					}},
				},
			},
			wantErr: "does not appear earlier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rb.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("validate succeeded, want error")
			}
			var te *tool.ToolError
			if !errors.As(err, &te) || te.Code != "runbook_invalid" {
				t.Fatalf("error = %v, want InvalidArgs/runbook_invalid", err)
			}
			if !strings.Contains(te.Message, tt.wantErr) {
				t.Errorf("message = %q, want substring %q", te.Message, tt.wantErr)
			}
		})
	}
}

func TestRunbook_ValidateAcceptsOptionalForwardFreeRefs(t *testing.T) {
	t.Parallel()

	rb := Runbook{
		Name: "ok",
		Steps: []Step{
			{ID: "a", Tool: "echo"},
			{ID: "b", Tool: "echo", Args: map[string]any{"v": "{{ ?steps.a.result }}"}},
		},
	}
	if err := rb.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
