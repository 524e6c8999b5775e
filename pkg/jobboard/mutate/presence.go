package mutate

import (
	"strings"
	"sync"
)

// PresenceTracker remembers, per table, which columns writes have proven
// present or missing. It outlives single calls so a pruned column is never
// sent again in this process.
type PresenceTracker struct {
	mu     sync.RWMutex
	tables map[string]map[string]bool
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{tables: make(map[string]map[string]bool)}
}

func (p *PresenceTracker) Snapshot(table string) map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.tables[table]))
	for k, v := range p.tables[table] {
		out[k] = v
	}
	return out
}

func (p *PresenceTracker) MarkMissing(table, column string) {
	p.set(table, []string{column}, false)
}

func (p *PresenceTracker) MarkPresent(table string, columns []string) {
	p.set(table, columns, true)
}

func (p *PresenceTracker) set(table string, columns []string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.tables[table]
	if !ok {
		m = make(map[string]bool)
		p.tables[table] = m
	}
	for _, c := range columns {
		m[strings.ToLower(c)] = present
	}
}

// Bind fills req.Presence from the tracker and chains the tracker's updates
// after any callbacks already set on req. Entries the caller put in
// req.Presence take precedence.
func (p *PresenceTracker) Bind(req Request) Request {
	presence := p.Snapshot(req.Table)
	for k, v := range req.Presence {
		presence[strings.ToLower(k)] = v
	}
	req.Presence = presence

	table := req.Table
	onMissing := req.OnColumnMissing
	req.OnColumnMissing = func(column string) {
		p.MarkMissing(table, column)
		if onMissing != nil {
			onMissing(column)
		}
	}
	onUpdate := req.OnColumnPresenceUpdate
	req.OnColumnPresenceUpdate = func(columns []string) {
		p.MarkPresent(table, columns)
		if onUpdate != nil {
			onUpdate(columns)
		}
	}
	return req
}
