package postgrest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
)

// encodeFilters renders single-condition groups as column params and
// OR-groups through or=(...), nesting several OR-groups under and=(...).
func encodeFilters(q url.Values, filters []backend.Filter) {
	var groups []string
	for _, f := range filters {
		switch len(f.AnyOf) {
		case 0:
		case 1:
			c := f.AnyOf[0]
			q.Add(c.Column, operand(c, false))
		default:
			parts := make([]string, len(f.AnyOf))
			for i, c := range f.AnyOf {
				parts[i] = c.Column + "." + operand(c, true)
			}
			groups = append(groups, strings.Join(parts, ","))
		}
	}
	switch len(groups) {
	case 0:
	case 1:
		q.Set("or", "("+groups[0]+")")
	default:
		wrapped := make([]string, len(groups))
		for i, g := range groups {
			wrapped[i] = "or(" + g + ")"
		}
		q.Set("and", "("+strings.Join(wrapped, ",")+")")
	}
}

func operand(c backend.Condition, nested bool) string {
	switch c.Op {
	case backend.OpILike:
		pattern := strings.ReplaceAll(fmt.Sprint(c.Value), "%", "*")
		return "ilike." + value(pattern, nested)
	case backend.OpIn:
		vals := make([]string, len(c.Values))
		for i, v := range c.Values {
			vals[i] = value(fmt.Sprint(v), true)
		}
		return "in.(" + strings.Join(vals, ",") + ")"
	default:
		return "eq." + value(fmt.Sprint(c.Value), nested)
	}
}

// value double-quotes v when it carries PostgREST's reserved characters.
func value(v string, nested bool) string {
	if !nested && !strings.ContainsAny(v, `"`) {
		return v
	}
	if !strings.ContainsAny(v, `,.:()"\ `) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
