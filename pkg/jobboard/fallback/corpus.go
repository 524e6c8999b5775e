// Package fallback holds the bundled static dataset served when the live
// backend is unusable, and the policy that merges it with live rows.
package fallback

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sync"

	"github.com/iancoleman/strcase"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/record"
	"github.com/nonibytes/jobboard/pkg/jobboard/resolve"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

//go:embed data/*.json
var bundled embed.FS

type entry struct {
	once sync.Once
	rows []record.Record
	err  error
}

// Corpus loads <table>.json from its filesystem once per table. Callers get
// copies; the loaded rows are never mutated.
type Corpus struct {
	fsys fs.FS
	dir  string

	mu      sync.Mutex
	entries map[string]*entry
}

// Bundled returns a corpus over the datasets compiled into the binary.
func Bundled() *Corpus { return NewCorpus(bundled, "data") }

func NewCorpus(fsys fs.FS, dir string) *Corpus {
	return &Corpus{fsys: fsys, dir: dir, entries: make(map[string]*entry)}
}

func (c *Corpus) entry(table string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[table]
	if !ok {
		e = &entry{}
		c.entries[table] = e
	}
	return e
}

// Records returns the normalized static records of table. A table without a
// dataset has an empty corpus.
func (c *Corpus) Records(table string) ([]record.Record, error) {
	e := c.entry(table)
	e.once.Do(func() { e.rows, e.err = c.load(table) })
	if e.err != nil {
		return nil, e.err
	}
	out := make([]record.Record, len(e.rows))
	for i, r := range e.rows {
		out[i] = record.Clone(r)
	}
	return out, nil
}

func (c *Corpus) load(table string) ([]record.Record, error) {
	b, err := fs.ReadFile(c.fsys, c.dir+"/"+table+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, jberrors.Wrap(jberrors.ErrSchema, "read fallback corpus "+table, err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, jberrors.Wrap(jberrors.ErrSchema, "parse fallback corpus "+table, err)
	}

	spec, known := schema.Builtin(table)
	rows := make([]record.Record, 0, len(raw))
	for _, r := range raw {
		if known {
			rows = append(rows, Normalize(r, spec))
		} else {
			rows = append(rows, record.Record(snakeKeys(r)))
		}
	}
	return rows, nil
}

// Normalize turns a static row, with camelCase or snake_case keys, into a
// record of spec's logical fields.
func Normalize(r map[string]any, spec schema.TableSpec) record.Record {
	return record.Normalize(snakeKeys(r), resolve.ColumnMap{}, spec)
}

func snakeKeys(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[strcase.ToSnake(k)] = v
	}
	return out
}
