// Package memory is an in-process backend with a declared column set per
// table. It reports failures with the same codes and wording PostgREST uses,
// so drift scenarios can run without a server.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
)

type table struct {
	columns    []string
	rows       []map[string]any
	denyReads  bool
	denyWrites bool
}

func (t *table) has(col string) bool {
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

type Backend struct {
	mu     sync.RWMutex
	tables map[string]*table
	caps   backend.Capabilities
	calls  int
}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		tables: make(map[string]*table),
		caps:   backend.Capabilities{Range: true, Count: true, Upsert: true},
	}
}

func (b *Backend) Name() string     { return "memory" }
func (b *Backend) Configured() bool { return true }
func (b *Backend) Close() error     { return nil }

func (b *Backend) Capabilities() backend.Capabilities {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caps
}

func (b *Backend) SetCapabilities(c backend.Capabilities) {
	b.mu.Lock()
	b.caps = c
	b.mu.Unlock()
}

// CreateTable declares (or redeclares, dropping rows) a table.
func (b *Backend) CreateTable(name string, columns ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = &table{columns: append([]string(nil), columns...)}
}

func (b *Backend) DropTable(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tables, name)
}

// Seed appends rows bypassing policies. Unknown columns are an error.
func (b *Backend) Seed(name string, rows ...map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tables[name]
	if !ok {
		return tableMissing(name)
	}
	for _, r := range rows {
		for k := range r {
			if !t.has(k) {
				return columnMissing(name, k)
			}
		}
		t.rows = append(t.rows, cloneRow(r))
	}
	return nil
}

// DenyReads and DenyWrites emulate row-level security rejecting the caller.
func (b *Backend) DenyReads(name string, deny bool) { b.policy(name, func(t *table) { t.denyReads = deny }) }
func (b *Backend) DenyWrites(name string, deny bool) {
	b.policy(name, func(t *table) { t.denyWrites = deny })
}

func (b *Backend) policy(name string, set func(*table)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[name]; ok {
		set(t)
	}
}

// Rows returns a copy of the stored rows.
func (b *Backend) Rows(name string) []map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Calls counts Select and Write invocations.
func (b *Backend) Calls() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls
}

func (b *Backend) Select(ctx context.Context, req backend.SelectRequest) (backend.SelectResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return backend.SelectResult{}, &backend.Error{Message: err.Error(), Cause: err}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[req.Table]
	if !ok {
		return backend.SelectResult{}, tableMissing(req.Table)
	}
	if t.denyReads {
		return backend.SelectResult{}, permissionDenied(req.Table)
	}

	cols := req.Columns
	if len(cols) == 0 {
		cols = t.columns
	}
	for _, c := range cols {
		if !t.has(c) {
			return backend.SelectResult{}, selectColumnMissing(req.Table, c)
		}
	}
	for _, f := range req.Filters {
		for _, c := range f.AnyOf {
			if !t.has(c.Column) {
				return backend.SelectResult{}, selectColumnMissing(req.Table, c.Column)
			}
		}
	}
	for _, o := range req.Order {
		if !t.has(o.Column) {
			return backend.SelectResult{}, selectColumnMissing(req.Table, o.Column)
		}
	}

	var matched []map[string]any
	for _, r := range t.rows {
		if matchAll(r, req.Filters) {
			matched = append(matched, r)
		}
	}
	if len(req.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j], req.Order) })
	}
	total := int64(len(matched))

	start := 0
	if req.Ranged {
		start = min(max(req.Offset, 0), len(matched))
	}
	end := start + min(max(req.Limit, 0), len(matched)-start)

	res := backend.SelectResult{Rows: make([]map[string]any, 0, end-start)}
	for _, r := range matched[start:end] {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[c] = r[c]
		}
		res.Rows = append(res.Rows, row)
	}
	if b.caps.ExposesColumns {
		res.Columns = append([]string(nil), t.columns...)
	}
	if req.Count && b.caps.Count {
		res.Count = &total
	}
	return res, nil
}

func (b *Backend) Write(ctx context.Context, req backend.WriteRequest) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if err := ctx.Err(); err != nil {
		return nil, &backend.Error{Message: err.Error(), Cause: err}
	}
	t, ok := b.tables[req.Table]
	if !ok {
		return nil, tableMissing(req.Table)
	}
	keys := make([]string, 0, len(req.Payload))
	for k := range req.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !t.has(k) {
			return nil, columnMissing(req.Table, k)
		}
	}
	if t.denyWrites {
		return nil, &backend.Error{
			Code:    "42501",
			Message: fmt.Sprintf("new row violates row-level security policy for table %q", req.Table),
			Status:  http.StatusForbidden,
		}
	}

	if req.OnConflict != "" {
		if !t.has(req.OnConflict) {
			return nil, columnMissing(req.Table, req.OnConflict)
		}
		key := req.Payload[req.OnConflict]
		for _, r := range t.rows {
			if key != nil && fmt.Sprint(r[req.OnConflict]) == fmt.Sprint(key) {
				for k, v := range req.Payload {
					r[k] = v
				}
				return b.full(t, r), nil
			}
		}
	}
	row := cloneRow(req.Payload)
	t.rows = append(t.rows, row)
	return b.full(t, row), nil
}

func (b *Backend) full(t *table, r map[string]any) map[string]any {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c] = r[c]
	}
	return out
}

func tableMissing(name string) error {
	return &backend.Error{
		Code:    "PGRST205",
		Message: fmt.Sprintf("Could not find the table 'public.%s' in the schema cache", name),
		Status:  http.StatusNotFound,
	}
}

func columnMissing(tableName, col string) error {
	return &backend.Error{
		Code:    "PGRST204",
		Message: fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", col, tableName),
		Status:  http.StatusBadRequest,
	}
}

func selectColumnMissing(tableName, col string) error {
	return &backend.Error{
		Code:    "42703",
		Message: fmt.Sprintf("column %s.%s does not exist", tableName, col),
		Status:  http.StatusBadRequest,
	}
}

func permissionDenied(name string) error {
	return &backend.Error{
		Code:    "42501",
		Message: "permission denied for table " + name,
		Status:  http.StatusUnauthorized,
	}
}

func cloneRow(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matchAll(r map[string]any, filters []backend.Filter) bool {
	for _, f := range filters {
		if len(f.AnyOf) == 0 {
			continue
		}
		ok := false
		for _, c := range f.AnyOf {
			if match(r[c.Column], c) {
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

func match(v any, c backend.Condition) bool {
	if v == nil {
		return false
	}
	s := fmt.Sprint(v)
	switch c.Op {
	case backend.OpEq:
		return s == fmt.Sprint(c.Value)
	case backend.OpIn:
		for _, want := range c.Values {
			if s == fmt.Sprint(want) {
				return true
			}
		}
		return false
	case backend.OpILike:
		return likeMatch(strings.ToLower(s), strings.ToLower(fmt.Sprint(c.Value)))
	default:
		return false
	}
}

// likeMatch supports % (any run) and _ (one character).
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return s != "" && likeMatch(s[1:], pattern[1:])
	default:
		return s != "" && s[0] == pattern[0] && likeMatch(s[1:], pattern[1:])
	}
}

func less(a, b map[string]any, order []backend.Order) bool {
	for _, o := range order {
		av, bv := a[o.Column], b[o.Column]
		if av == nil || bv == nil {
			if av == nil && bv == nil {
				continue
			}
			// nulls sort last with NullsLast, first otherwise
			return (bv == nil) == o.NullsLast
		}
		c := compare(av, bv)
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compare(a, b any) int {
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
