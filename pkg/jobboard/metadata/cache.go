package metadata

import (
	"encoding/json"
	"sort"
	"sync"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

// Existence is a tri-state answer to "does this table exist".
type Existence int

const (
	Unknown Existence = iota
	Exists
	Missing
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Exists as true, Missing as false and Unknown as null.
func (e Existence) MarshalJSON() ([]byte, error) {
	switch e {
	case Exists:
		return []byte("true"), nil
	case Missing:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (e *Existence) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*e = Unknown
	case *v:
		*e = Exists
	default:
		*e = Missing
	}
	return nil
}

type TableMetadata struct {
	Table string `json:"table"`
	// Columns may be empty even when the table exists.
	Columns []string        `json:"columns"`
	Exists  Existence       `json:"exists"`
	Err     *jberrors.Error `json:"error,omitempty"`
}

// Cache holds probe results per table name. Entries are never replaced: the
// first stored result wins until Clear.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]TableMetadata
}

func NewCache() *Cache {
	return &Cache{tables: make(map[string]TableMetadata)}
}

func (c *Cache) Get(table string) (TableMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.tables[table]
	if ok {
		md.Columns = append([]string(nil), md.Columns...)
	}
	return md, ok
}

// Store records md unless the table is already cached, and returns the
// entry that is cached afterwards.
func (c *Cache) Store(md TableMetadata) TableMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tables[md.Table]; ok {
		return existing
	}
	md.Columns = append([]string(nil), md.Columns...)
	c.tables[md.Table] = md
	return md
}

// Clear forgets every table so the next probe hits the backend again.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = make(map[string]TableMetadata)
}

func (c *Cache) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for t := range c.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
