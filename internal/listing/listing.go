// Package listing implements the list-action contract shared by every
// enumerable tool: query, tags, where, limit, offset in; items plus
// pagination meta out.
package listing

import (
	"reflect"
	"strings"

	"github.com/opsgate/opsgate/internal/tool"
)

// Limit defaults and cap for list actions.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filters narrows and paginates a listing.
type Filters struct {
	Query  string
	Tags   []string
	Where  map[string]any
	Limit  int
	Offset int
}

// Meta describes the page returned by a list action.
type Meta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Page is the uniform list result shape.
type Page struct {
	Items []any `json:"items"`
	Meta  Meta  `json:"meta"`
}

// ParseFilters reads the shared filter arguments. Limit defaults to 50
// and caps at 500; explicit zero is honoured (empty page, real meta).
func ParseFilters(args tool.Args) (Filters, error) {
	f := Filters{Limit: DefaultLimit}

	query, err := args.String("query")
	if err != nil {
		return f, err
	}
	f.Query = query

	tags, err := args.StringSlice("tags")
	if err != nil {
		return f, err
	}
	f.Tags = tags

	where, err := args.Map("where")
	if err != nil {
		return f, err
	}
	f.Where = where

	if _, present := args["limit"]; present {
		limit, err := args.Int("limit", DefaultLimit)
		if err != nil {
			return f, err
		}
		if limit < 0 {
			return f, tool.InvalidArgs("arg_range", "limit must not be negative")
		}
		f.Limit = min(limit, MaxLimit)
	}

	offset, err := args.Int("offset", 0)
	if err != nil {
		return f, err
	}
	if offset < 0 {
		return f, tool.InvalidArgs("arg_range", "offset must not be negative")
	}
	f.Offset = offset
	return f, nil
}

// Candidate is one listable item with its match surfaces. Text carries
// name plus description for substring queries; Fields backs the where
// filter; Item is what lands in the page.
type Candidate struct {
	Text   string
	Tags   []string
	Fields map[string]any
	Item   any
}

// Apply filters and paginates candidates, which must already be in
// their stable order.
func Apply(cands []Candidate, f Filters) Page {
	var matched []any
	for _, c := range cands {
		if !matches(c, f) {
			continue
		}
		matched = append(matched, c.Item)
	}

	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)

	items := matched[start:end]
	if items == nil {
		items = []any{}
	}
	return Page{
		Items: items,
		Meta: Meta{
			Total:   total,
			Limit:   f.Limit,
			Offset:  f.Offset,
			HasMore: end < total,
		},
	}
}

func matches(c Candidate, f Filters) bool {
	if f.Query != "" && !strings.Contains(strings.ToLower(c.Text), strings.ToLower(f.Query)) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range c.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, want := range f.Where {
		have, ok := c.Fields[key]
		if !ok || !looseEqual(have, want) {
			return false
		}
	}
	return true
}

// looseEqual compares field values across the int/float boundary JSON
// decoding introduces.
func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
