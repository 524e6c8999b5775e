package sqlstore

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Dialect captures what differs between the SQL engines behind Store.
type Dialect struct {
	Name  string
	Style PlaceholderStyle
	// Quote wraps an identifier. SQLite must not use double quotes: an
	// unknown double-quoted name silently becomes a string literal there.
	Quote func(ident string) string
	// ILike renders a case-insensitive pattern match.
	ILike func(col, placeholder string) string
	// Encode converts a payload value into a driver argument.
	Encode func(v any) any
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is safe to splice into SQL after quoting.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

var Postgres = Dialect{
	Name:  "postgres",
	Style: PlaceholderDollar,
	Quote: func(ident string) string { return `"` + ident + `"` },
	ILike: func(col, ph string) string { return col + "::text ILIKE " + ph },
	Encode: func(v any) any {
		switch t := v.(type) {
		case []string:
			return t
		case []any:
			strs := make([]string, 0, len(t))
			for _, e := range t {
				s, ok := e.(string)
				if !ok {
					return jsonText(v)
				}
				strs = append(strs, s)
			}
			return strs
		case map[string]any:
			return jsonText(v)
		default:
			return v
		}
	},
}

var SQLite = Dialect{
	Name:  "sqlite",
	Style: PlaceholderQuestion,
	Quote: func(ident string) string { return "`" + ident + "`" },
	// LIKE is case-insensitive for ASCII in SQLite.
	ILike: func(col, ph string) string { return "CAST(" + col + " AS TEXT) LIKE " + ph },
	Encode: func(v any) any {
		switch t := v.(type) {
		case []string, []any, map[string]any:
			return jsonText(t)
		case bool:
			if t {
				return 1
			}
			return 0
		default:
			return v
		}
	},
}

func jsonText(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}

func (d Dialect) columnList(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = d.Quote(c)
	}
	return strings.Join(q, ", ")
}
