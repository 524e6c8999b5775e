// Package sqlstore implements the backend contract over database/sql. The
// postgres and sqlite adapters configure it with their dialect and error
// mapping.
package sqlstore

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

type Store struct {
	DB      *sql.DB
	Dialect Dialect
	Logger  *slog.Logger
	// MapError converts a driver error into a *backend.Error. The result
	// must keep err reachable through Unwrap.
	MapError func(err error) error
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Store) mapErr(err error) error {
	if s.MapError != nil {
		return s.MapError(err)
	}
	return &backend.Error{Message: err.Error(), Cause: err}
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func invalid(msg string) error {
	return jberrors.NewError(jberrors.ErrInvalidRequest, msg)
}

func (s *Store) Select(ctx context.Context, req backend.SelectRequest) (backend.SelectResult, error) {
	if !ValidIdent(req.Table) {
		return backend.SelectResult{}, invalid("invalid table name: " + req.Table)
	}
	cols := "*"
	if len(req.Columns) > 0 {
		for _, c := range req.Columns {
			if !ValidIdent(c) {
				return backend.SelectResult{}, invalid("invalid column name: " + c)
			}
		}
		cols = s.Dialect.columnList(req.Columns)
	}

	b := NewBuilder(s.Dialect.Style)
	where, err := s.where(b, req.Filters)
	if err != nil {
		return backend.SelectResult{}, err
	}
	var q strings.Builder
	q.WriteString("SELECT " + cols + " FROM " + s.Dialect.Quote(req.Table) + where)
	if len(req.Order) > 0 {
		parts := make([]string, 0, len(req.Order))
		for _, o := range req.Order {
			if !ValidIdent(o.Column) {
				return backend.SelectResult{}, invalid("invalid order column: " + o.Column)
			}
			p := s.Dialect.Quote(o.Column)
			if o.Desc {
				p += " DESC"
			}
			if o.NullsLast {
				p += " NULLS LAST"
			}
			parts = append(parts, p)
		}
		q.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	q.WriteString(" LIMIT " + b.Arg(req.Limit))
	if req.Ranged && req.Offset > 0 {
		q.WriteString(" OFFSET " + b.Arg(req.Offset))
	}

	start := time.Now()
	rows, err := s.DB.QueryContext(ctx, q.String(), b.Args()...)
	if err != nil {
		return backend.SelectResult{}, s.mapErr(err)
	}
	defer rows.Close()
	names, out, err := scanRows(rows)
	if err != nil {
		return backend.SelectResult{}, s.mapErr(err)
	}
	s.logQuery(q.String(), b.Args(), time.Since(start), len(out))

	res := backend.SelectResult{Rows: out, Columns: names}
	if req.Count {
		cb := NewBuilder(s.Dialect.Style)
		cwhere, _ := s.where(cb, req.Filters)
		cq := "SELECT COUNT(*) FROM " + s.Dialect.Quote(req.Table) + cwhere
		start = time.Now()
		var n int64
		if err := s.DB.QueryRowContext(ctx, cq, cb.Args()...).Scan(&n); err != nil {
			return backend.SelectResult{}, s.mapErr(err)
		}
		s.logQuery(cq, cb.Args(), time.Since(start), 1)
		res.Count = &n
	}
	return res, nil
}

func (s *Store) where(b *Builder, filters []backend.Filter) (string, error) {
	var groups []string
	for _, f := range filters {
		var conds []string
		for _, c := range f.AnyOf {
			if !ValidIdent(c.Column) {
				return "", invalid("invalid filter column: " + c.Column)
			}
			col := s.Dialect.Quote(c.Column)
			switch c.Op {
			case backend.OpEq:
				conds = append(conds, col+" = "+b.Arg(c.Value))
			case backend.OpILike:
				conds = append(conds, s.Dialect.ILike(col, b.Arg(c.Value)))
			case backend.OpIn:
				if len(c.Values) == 0 {
					conds = append(conds, "1 = 0")
					continue
				}
				phs := make([]string, len(c.Values))
				for i, v := range c.Values {
					phs[i] = b.Arg(v)
				}
				conds = append(conds, col+" IN ("+strings.Join(phs, ", ")+")")
			default:
				return "", invalid("unsupported operator: " + string(c.Op))
			}
		}
		if len(conds) > 0 {
			groups = append(groups, "("+strings.Join(conds, " OR ")+")")
		}
	}
	if len(groups) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(groups, " AND "), nil
}

// Write inserts req.Payload, or upserts it on req.OnConflict, and returns
// the stored row.
func (s *Store) Write(ctx context.Context, req backend.WriteRequest) (map[string]any, error) {
	if !ValidIdent(req.Table) {
		return nil, invalid("invalid table name: " + req.Table)
	}
	if len(req.Payload) == 0 {
		return nil, invalid("empty payload")
	}
	keys := make([]string, 0, len(req.Payload))
	for k := range req.Payload {
		if !ValidIdent(k) {
			return nil, invalid("invalid column name: " + k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := NewBuilder(s.Dialect.Style)
	phs := make([]string, len(keys))
	for i, k := range keys {
		phs[i] = b.Arg(s.Dialect.Encode(req.Payload[k]))
	}
	q := "INSERT INTO " + s.Dialect.Quote(req.Table) + " (" + s.Dialect.columnList(keys) + ") VALUES (" + strings.Join(phs, ", ") + ")"
	if req.OnConflict != "" {
		if !ValidIdent(req.OnConflict) {
			return nil, invalid("invalid conflict column: " + req.OnConflict)
		}
		var sets []string
		for _, k := range keys {
			if k != req.OnConflict {
				sets = append(sets, s.Dialect.Quote(k)+" = excluded."+s.Dialect.Quote(k))
			}
		}
		q += " ON CONFLICT (" + s.Dialect.Quote(req.OnConflict) + ")"
		if len(sets) == 0 {
			q += " DO NOTHING"
		} else {
			q += " DO UPDATE SET " + strings.Join(sets, ", ")
		}
	}
	q += " RETURNING *"

	start := time.Now()
	rows, err := s.DB.QueryContext(ctx, q, b.Args()...)
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer rows.Close()
	_, out, err := scanRows(rows)
	if err != nil {
		return nil, s.mapErr(err)
	}
	s.logQuery(q, b.Args(), time.Since(start), len(out))
	if len(out) == 0 {
		// DO NOTHING on an existing row returns nothing.
		echo := make(map[string]any, len(req.Payload))
		for k, v := range req.Payload {
			echo[k] = v
		}
		return echo, nil
	}
	return out[0], nil
}

func scanRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(names))
		for i, n := range names {
			if b, ok := vals[i].([]byte); ok {
				row[n] = string(b)
				continue
			}
			row[n] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return names, out, nil
}

func (s *Store) logQuery(q string, args []any, d time.Duration, rows int) {
	s.logger().Debug("sql",
		"dialect", s.Dialect.Name,
		"duration_ms", float64(d.Microseconds())/1000,
		"rows", rows,
		"query", q,
		"args", len(args),
	)
}
