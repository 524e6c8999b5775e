package record

import (
	"fmt"
	"strings"

	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

// Filters is the read filter set. Categories is keyed by logical field.
type Filters struct {
	SearchTerm string              `json:"searchTerm,omitempty"`
	Locations  []string            `json:"locations,omitempty"`
	Categories map[string][]string `json:"categories,omitempty"`
}

func (f Filters) Active() bool {
	if strings.TrimSpace(f.SearchTerm) != "" || len(nonEmpty(f.Locations)) > 0 {
		return true
	}
	for _, vals := range f.Categories {
		if len(nonEmpty(vals)) > 0 {
			return true
		}
	}
	return false
}

// Clean trims values and drops empty ones.
func (f Filters) Clean() Filters {
	out := Filters{SearchTerm: strings.TrimSpace(f.SearchTerm), Locations: nonEmpty(f.Locations)}
	for k, vals := range f.Categories {
		if v := nonEmpty(vals); len(v) > 0 {
			if out.Categories == nil {
				out.Categories = make(map[string][]string)
			}
			out.Categories[k] = v
		}
	}
	return out
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Matches evaluates f against a normalized record the way the live query
// would: substring search and locations, exact (case-insensitive) categories.
func Matches(r Record, spec schema.TableSpec, f Filters) bool {
	f = f.Clean()
	if f.SearchTerm != "" && !containsAny(r, spec.SearchKeys, []string{f.SearchTerm}) {
		return false
	}
	if len(f.Locations) > 0 && !containsAny(r, spec.LocationKeys, f.Locations) {
		return false
	}
	for key, vals := range f.Categories {
		s := text(r[key])
		ok := false
		for _, v := range vals {
			if strings.EqualFold(s, v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func containsAny(r Record, keys, needles []string) bool {
	for _, k := range keys {
		hay := strings.ToLower(text(r[k]))
		if hay == "" {
			continue
		}
		for _, n := range needles {
			if strings.Contains(hay, strings.ToLower(n)) {
				return true
			}
		}
	}
	return false
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
