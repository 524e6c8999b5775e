// Package record turns backend rows into the canonical shape consumers see:
// logical keys populated and defaults applied.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nonibytes/jobboard/pkg/jobboard/resolve"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

// Record is a normalized row. It keeps the raw physical columns and adds
// every logical key of its table spec.
type Record map[string]any

// Normalize copies raw and fills each logical key from the physical column
// cols maps it to; an unmapped key is null. With an empty map (the static
// corpus) the logical key itself is read, then the field's candidates.
func Normalize(raw map[string]any, cols resolve.ColumnMap, spec schema.TableSpec) Record {
	out := make(Record, len(raw)+len(spec.Fields))
	lower := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = plain(v)
		lower[strings.ToLower(k)] = k
	}
	lookup := func(name string) (any, bool) {
		if k, ok := lower[strings.ToLower(name)]; ok {
			return out[k], true
		}
		return nil, false
	}

	for _, f := range spec.Fields {
		var v any
		if len(cols) > 0 {
			if phys, ok := cols.Physical(f.Key); ok {
				v, _ = lookup(phys)
			}
		} else {
			for _, c := range append([]string{f.Key}, f.Candidates()...) {
				var found bool
				if v, found = lookup(c); found {
					break
				}
			}
		}
		out[f.Key] = coerce(f, v)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func coerce(f schema.FieldSpec, v any) any {
	switch f.Kind {
	case schema.KindList:
		return toList(v)
	case schema.KindBool:
		return toBool(v)
	case schema.KindNumber:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return n
			}
		}
		return v
	default:
		if v == nil && f.Placeholder != "" {
			return f.Placeholder
		}
		if s, ok := v.(string); ok && s == "" && f.Placeholder != "" {
			return f.Placeholder
		}
		return v
	}
}

func toList(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return []any{}
		}
		// SQLite keeps lists as JSON text; Postgres arrays come back as {a,b}.
		if strings.HasPrefix(s, "[") {
			var out []any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			s = s[1 : len(s)-1]
			if s == "" {
				return []any{}
			}
			parts := strings.Split(s, ",")
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = strings.Trim(p, `"`)
			}
			return out
		}
		return []any{t}
	default:
		return []any{t}
	}
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

// ID is the stringified identity of r; "" when it has none.
func ID(r map[string]any, identityKey string) string {
	switch v := r[identityKey].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Clone copies r deep enough that list and object values aren't shared.
func Clone(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
