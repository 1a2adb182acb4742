package listing

import (
	"errors"
	"testing"

	"github.com/opsgate/opsgate/internal/tool"
)

func candidates() []Candidate {
	return []Candidate{
		{Text: "restart-web restart the web tier", Tags: []string{"web", "prod"}, Fields: map[string]any{"steps": 3}, Item: "restart-web"},
		{Text: "rotate-creds rotate database credentials", Tags: []string{"db"}, Fields: map[string]any{"steps": 2}, Item: "rotate-creds"},
		{Text: "drain-node drain a kubernetes node", Tags: []string{"k8s", "prod"}, Fields: map[string]any{"steps": 3}, Item: "drain-node"},
	}
}

func TestParseFilters_Defaults(t *testing.T) {
	t.Parallel()

	f, err := ParseFilters(tool.Args{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != DefaultLimit || f.Offset != 0 {
		t.Errorf("filters = %+v, want limit %d offset 0", f, DefaultLimit)
	}
}

func TestParseFilters_ExplicitZeroLimit(t *testing.T) {
	t.Parallel()

	f, err := ParseFilters(tool.Args{"limit": float64(0)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != 0 {
		t.Errorf("limit = %d, want explicit zero honoured", f.Limit)
	}

	page := Apply(candidates(), f)
	if len(page.Items) != 0 {
		t.Errorf("items = %v, want empty page", page.Items)
	}
	if page.Meta.Total != 3 || !page.Meta.HasMore {
		t.Errorf("meta = %+v, want total 3 has_more true", page.Meta)
	}
}

func TestParseFilters_LimitCap(t *testing.T) {
	t.Parallel()

	f, err := ParseFilters(tool.Args{"limit": float64(9999)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != MaxLimit {
		t.Errorf("limit = %d, want capped at %d", f.Limit, MaxLimit)
	}
}

func TestParseFilters_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args tool.Args
		code string
	}{
		{"negative limit", tool.Args{"limit": float64(-1)}, "arg_range"},
		{"negative offset", tool.Args{"offset": float64(-5)}, "arg_range"},
		{"limit wrong type", tool.Args{"limit": "ten"}, "arg_type"},
		{"tags wrong type", tool.Args{"tags": float64(3)}, "arg_type"},
		{"where wrong type", tool.Args{"where": "x"}, "arg_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseFilters(tt.args)
			var te *tool.ToolError
			if !errors.As(err, &te) {
				t.Fatalf("error type = %T, want *ToolError", err)
			}
			if te.Code != tt.code {
				t.Errorf("code = %q, want %q", te.Code, tt.code)
			}
		})
	}
}

func TestApply_QueryIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	page := Apply(candidates(), Filters{Query: "DATABASE", Limit: DefaultLimit})
	if len(page.Items) != 1 || page.Items[0] != "rotate-creds" {
		t.Errorf("items = %v, want [rotate-creds]", page.Items)
	}
}

func TestApply_TagsRequireAll(t *testing.T) {
	t.Parallel()

	page := Apply(candidates(), Filters{Tags: []string{"prod"}, Limit: DefaultLimit})
	if len(page.Items) != 2 {
		t.Fatalf("items = %v, want two prod entries", page.Items)
	}

	page = Apply(candidates(), Filters{Tags: []string{"prod", "k8s"}, Limit: DefaultLimit})
	if len(page.Items) != 1 || page.Items[0] != "drain-node" {
		t.Errorf("items = %v, want [drain-node]", page.Items)
	}
}

func TestApply_WhereMatchesAcrossNumericTypes(t *testing.T) {
	t.Parallel()

	// JSON decoding yields float64; stored fields may be int.
	page := Apply(candidates(), Filters{Where: map[string]any{"steps": float64(3)}, Limit: DefaultLimit})
	if len(page.Items) != 2 {
		t.Errorf("items = %v, want both three-step entries", page.Items)
	}
}

func TestApply_Pagination(t *testing.T) {
	t.Parallel()

	page := Apply(candidates(), Filters{Limit: 2})
	if len(page.Items) != 2 || !page.Meta.HasMore {
		t.Errorf("page 1 = %+v, want 2 items has_more", page)
	}

	page = Apply(candidates(), Filters{Limit: 2, Offset: 2})
	if len(page.Items) != 1 || page.Meta.HasMore {
		t.Errorf("page 2 = %+v, want 1 item no more", page)
	}

	page = Apply(candidates(), Filters{Limit: 2, Offset: 100})
	if len(page.Items) != 0 || page.Meta.Total != 3 {
		t.Errorf("far offset = %+v, want empty items real total", page)
	}
	if page.Items == nil {
		t.Error("items must serialise as [], not null")
	}
}
