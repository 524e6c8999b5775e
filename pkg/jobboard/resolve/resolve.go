// Package resolve negotiates which physical column backs each logical field.
//
// A State is a value: every transition returns a new State and never touches
// the receiver, so one State can be shared by concurrent calls.
package resolve

import (
	"strings"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

// Binding is the resolution of one logical field.
type Binding struct {
	Key string
	// Selected is the bound physical column; "" means null.
	Selected  string
	Remaining []string
	Optional  bool
}

type State struct {
	table       string
	bindings    []Binding
	rejected    []string
	maxAttempts int
}

func newState(spec schema.TableSpec) State {
	n := 0
	for _, f := range spec.Fields {
		n += len(f.Candidates())
	}
	return State{table: spec.Table, bindings: make([]Binding, 0, len(spec.Fields)), maxAttempts: n}
}

// Optimistic binds every field to its primary name. Used when the backend
// doesn't tell us which columns exist.
func Optimistic(spec schema.TableSpec) State {
	s := newState(spec)
	for _, f := range spec.Fields {
		s.bindings = append(s.bindings, Binding{
			Key:       f.Key,
			Selected:  f.Primary,
			Remaining: append([]string(nil), f.Fallbacks...),
			Optional:  f.Optional,
		})
	}
	return s
}

// FromColumns resolves each field against a known column list. It returns the
// keys of required fields that no listed column could back.
func FromColumns(spec schema.TableSpec, columns []string) (State, []string) {
	known := make(map[string]string, len(columns))
	for _, c := range columns {
		known[strings.ToLower(c)] = c
	}
	claimed := make(map[string]bool)
	s := newState(spec)
	var unresolved []string
	for _, f := range spec.Fields {
		b := Binding{Key: f.Key, Optional: f.Optional}
		cands := f.Candidates()
		for i, c := range cands {
			actual, ok := known[strings.ToLower(c)]
			if !ok || claimed[strings.ToLower(c)] {
				continue
			}
			b.Selected = actual
			claimed[strings.ToLower(c)] = true
			for _, rest := range cands[i+1:] {
				if actual, ok := known[strings.ToLower(rest)]; ok {
					b.Remaining = append(b.Remaining, actual)
				}
			}
			break
		}
		if b.Selected == "" && !f.Optional {
			unresolved = append(unresolved, f.Key)
		}
		s.bindings = append(s.bindings, b)
	}
	return s, unresolved
}

func (s State) Table() string { return s.table }

// MaxAttempts bounds the query retry loop: each failed attempt consumes at
// least one candidate.
func (s State) MaxAttempts() int { return s.maxAttempts }

func (s State) Bindings() []Binding {
	out := make([]Binding, len(s.bindings))
	for i, b := range s.bindings {
		b.Remaining = append([]string(nil), b.Remaining...)
		out[i] = b
	}
	return out
}

// Selected returns the physical column bound to key.
func (s State) Selected(key string) (string, bool) {
	for _, b := range s.bindings {
		if b.Key == key {
			return b.Selected, b.Selected != ""
		}
	}
	return "", false
}

// Columns lists the bound physical columns in field order.
func (s State) Columns() []string {
	out := make([]string, 0, len(s.bindings))
	for _, b := range s.bindings {
		if b.Selected != "" {
			out = append(out, b.Selected)
		}
	}
	return out
}

// Unresolved lists required keys with no bound column.
func (s State) Unresolved() []string {
	var out []string
	for _, b := range s.bindings {
		if b.Selected == "" && !b.Optional {
			out = append(out, b.Key)
		}
	}
	return out
}

func (s State) ColumnMap() ColumnMap {
	m := make(ColumnMap, len(s.bindings))
	for _, b := range s.bindings {
		if b.Selected != "" {
			m[b.Key] = b.Selected
		}
	}
	return m
}

func (s State) clone() State {
	out := s
	out.bindings = s.Bindings()
	out.rejected = append([]string(nil), s.rejected...)
	return out
}

func (s State) isRejected(lc string) bool {
	for _, r := range s.rejected {
		if strings.ToLower(r) == lc {
			return true
		}
	}
	return false
}

// HandleMissing reacts to the backend reporting column as absent. handled is
// false when no field currently selects column; the failure then isn't a
// column-shape issue this State can fix. A required field running out of
// candidates yields a MISSING_COLUMNS error.
func (s State) HandleMissing(column string) (State, bool, error) {
	lc := strings.ToLower(column)
	owner := -1
	for i, b := range s.bindings {
		if b.Selected != "" && strings.ToLower(b.Selected) == lc {
			owner = i
			break
		}
	}
	if owner < 0 {
		return s, false, nil
	}

	next := s.clone()
	next.rejected = append(next.rejected, column)
	for i := range next.bindings {
		next.bindings[i].Remaining = without(next.bindings[i].Remaining, lc)
	}

	claimed := make(map[string]bool)
	for i, b := range next.bindings {
		if i != owner && b.Selected != "" {
			claimed[strings.ToLower(b.Selected)] = true
		}
	}

	b := &next.bindings[owner]
	b.Selected = ""
	for len(b.Remaining) > 0 {
		c := b.Remaining[0]
		b.Remaining = b.Remaining[1:]
		lcc := strings.ToLower(c)
		if claimed[lcc] || next.isRejected(lcc) {
			continue
		}
		b.Selected = c
		break
	}
	if b.Selected == "" && !b.Optional {
		return next, true, jberrors.MissingColumns([]string{b.Key})
	}
	return next, true, nil
}

func without(list []string, lc string) []string {
	out := list[:0:0]
	for _, c := range list {
		if strings.ToLower(c) != lc {
			out = append(out, c)
		}
	}
	return out
}

// ColumnMap maps logical keys to the physical column currently backing them.
// A key that is absent is null.
type ColumnMap map[string]string

func (m ColumnMap) Physical(key string) (string, bool) {
	c, ok := m[key]
	return c, ok && c != ""
}

// Resolved filters keys down to the ones with a bound column, preserving order.
func (m ColumnMap) Resolved(keys []string) []string {
	var out []string
	for _, k := range keys {
		if c, ok := m.Physical(k); ok {
			out = append(out, c)
		}
	}
	return out
}
