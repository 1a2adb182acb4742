package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	input := map[string]any{
		"service": "web",
		"env":     "prod",
		"replicas": float64(3),
		"reason":  "rollout stuck on node pool",
		"tags":    []any{"urgent", "k8s"},
	}

	tests := []struct {
		name string
		pred map[string]any
		want bool
	}{
		{"empty matches everything", map[string]any{}, true},
		{"equals hit", map[string]any{"equals": map[string]any{"service": "web"}}, true},
		{"equals miss", map[string]any{"equals": map[string]any{"service": "db"}}, false},
		{"equals numeric across types", map[string]any{"equals": map[string]any{"replicas": 3}}, true},
		{"in hit", map[string]any{"in": map[string]any{"env": []any{"staging", "prod"}}}, true},
		{"in miss", map[string]any{"in": map[string]any{"env": []any{"dev"}}}, false},
		{"contains hit", map[string]any{"contains": map[string]any{"reason": "stuck"}}, true},
		{"contains miss", map[string]any{"contains": map[string]any{"reason": "healthy"}}, false},
		{"contains non-string field", map[string]any{"contains": map[string]any{"replicas": "3"}}, false},
		{"tags_any hit", map[string]any{"tags_any": []any{"urgent", "other"}}, true},
		{"tags_any miss", map[string]any{"tags_any": []any{"other"}}, false},
		{"tags_all hit", map[string]any{"tags_all": []any{"urgent", "k8s"}}, true},
		{"tags_all miss", map[string]any{"tags_all": []any{"urgent", "db"}}, false},
		{
			"clauses in one object all hold",
			map[string]any{
				"equals":   map[string]any{"env": "prod"},
				"tags_any": []any{"urgent"},
			},
			true,
		},
		{
			"one failing clause sinks the object",
			map[string]any{
				"equals":   map[string]any{"env": "prod"},
				"tags_any": []any{"calm"},
			},
			false,
		},
		{
			"all_of",
			map[string]any{"all_of": []any{
				map[string]any{"equals": map[string]any{"service": "web"}},
				map[string]any{"equals": map[string]any{"env": "prod"}},
			}},
			true,
		},
		{
			"any_of",
			map[string]any{"any_of": []any{
				map[string]any{"equals": map[string]any{"service": "db"}},
				map[string]any{"equals": map[string]any{"service": "web"}},
			}},
			true,
		},
		{
			"not",
			map[string]any{"not": map[string]any{"equals": map[string]any{"env": "dev"}}},
			true,
		},
		{
			"nested composition",
			map[string]any{"all_of": []any{
				map[string]any{"not": map[string]any{"tags_any": []any{"drill"}}},
				map[string]any{"any_of": []any{
					map[string]any{"contains": map[string]any{"reason": "stuck"}},
					map[string]any{"equals": map[string]any{"env": "staging"}},
				}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Matches(tt.pred, input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches_MalformedPredicates(t *testing.T) {
	t.Parallel()

	input := map[string]any{"x": "y"}

	tests := []struct {
		name string
		pred map[string]any
	}{
		{"unknown operator", map[string]any{"glob": map[string]any{"x": "*"}}},
		{"equals needs object", map[string]any{"equals": "x"}},
		{"in needs arrays", map[string]any{"in": map[string]any{"x": "not-an-array"}}},
		{"contains needs strings", map[string]any{"contains": map[string]any{"x": 5}}},
		{"tags_any needs strings", map[string]any{"tags_any": []any{1, 2}}},
		{"all_of needs objects", map[string]any{"all_of": []any{"x"}}},
		{"not needs object", map[string]any{"not": []any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Matches(tt.pred, input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "capability_invalid")
		})
	}
}
