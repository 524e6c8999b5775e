package schema

import "strings"

type FieldKind string

const (
	KindText      FieldKind = "text"
	KindNumber    FieldKind = "number"
	KindBool      FieldKind = "bool"
	KindList      FieldKind = "list"
	KindTimestamp FieldKind = "timestamp"
)

// FieldSpec describes one logical field and the physical column names that
// may back it, in preference order.
type FieldSpec struct {
	Key       string    `yaml:"key" json:"key"`
	Primary   string    `yaml:"primary" json:"primary"`
	Fallbacks []string  `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
	Optional  bool      `yaml:"optional,omitempty" json:"optional,omitempty"`
	Kind      FieldKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	// Placeholder fills a missing text value (freshness labels).
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// Candidates returns the primary followed by the fallbacks.
func (f FieldSpec) Candidates() []string {
	out := make([]string, 0, 1+len(f.Fallbacks))
	if f.Primary != "" {
		out = append(out, f.Primary)
	}
	return append(out, f.Fallbacks...)
}

type TableSpec struct {
	Table string `yaml:"table" json:"table"`
	// Identity is the logical key used for dedup between live and static data.
	Identity string      `yaml:"identity" json:"identity"`
	Fields   []FieldSpec `yaml:"fields" json:"fields"`
	// SearchKeys are matched by the free-text search term.
	SearchKeys []string `yaml:"search_keys,omitempty" json:"searchKeys,omitempty"`
	// LocationKeys are matched by the location filter.
	LocationKeys []string `yaml:"location_keys,omitempty" json:"locationKeys,omitempty"`
	// CategoryKeys accept multi-value IN filters.
	CategoryKeys []string `yaml:"category_keys,omitempty" json:"categoryKeys,omitempty"`
	// OrderKeys are tried in order; the first resolved one sorts descending.
	OrderKeys []string `yaml:"order_keys,omitempty" json:"orderKeys,omitempty"`
}

func (s TableSpec) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (s TableSpec) IsCategory(key string) bool {
	for _, k := range s.CategoryKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't alias the built-in specs.
func (s TableSpec) Clone() TableSpec {
	out := s
	out.Fields = make([]FieldSpec, len(s.Fields))
	for i, f := range s.Fields {
		f.Fallbacks = append([]string(nil), f.Fallbacks...)
		out.Fields[i] = f
	}
	out.SearchKeys = append([]string(nil), s.SearchKeys...)
	out.LocationKeys = append([]string(nil), s.LocationKeys...)
	out.CategoryKeys = append([]string(nil), s.CategoryKeys...)
	out.OrderKeys = append([]string(nil), s.OrderKeys...)
	return out
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
