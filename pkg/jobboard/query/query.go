// Package query runs paginated, filtered reads that heal around missing
// columns and fall back to the static corpus when the table is unusable.
package query

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/classify"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/fallback"
	"github.com/nonibytes/jobboard/pkg/jobboard/metadata"
	"github.com/nonibytes/jobboard/pkg/jobboard/record"
	"github.com/nonibytes/jobboard/pkg/jobboard/resolve"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

type Filters = record.Filters

type Request struct {
	Filters  Filters
	Page     int
	PageSize int
	// FallbackRecords replaces the bundled corpus for this call when non-nil.
	FallbackRecords []record.Record
}

type Result struct {
	Records      []record.Record `json:"records"`
	Error        *jberrors.Error `json:"error"`
	FallbackUsed bool            `json:"fallbackUsed"`
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	HasMore      bool            `json:"hasMore"`
	TotalCount   *int64          `json:"totalCount"`
	// Columns is the column map the live rows were read with.
	Columns  resolve.ColumnMap `json:"columns,omitempty"`
	Attempts int               `json:"attempts"`
}

type Options struct {
	Backend backend.Backend
	Prober  *metadata.Prober
	Spec    schema.TableSpec
	Corpus  *fallback.Corpus
	Logger  *slog.Logger
}

type Executor struct {
	backend backend.Backend
	prober  *metadata.Prober
	spec    schema.TableSpec
	corpus  *fallback.Corpus
	logger  *slog.Logger

	// learned is the last resolution a query succeeded with.
	learned atomic.Pointer[resolve.State]
}

func New(opts Options) (*Executor, error) {
	if opts.Backend == nil {
		opts.Backend = backend.Unconfigured{}
	}
	if err := opts.Spec.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Prober == nil {
		opts.Prober = metadata.NewProber(opts.Backend, nil, opts.Logger)
	}
	if opts.Corpus == nil {
		opts.Corpus = fallback.Bundled()
	}
	return &Executor{
		backend: opts.Backend,
		prober:  opts.Prober,
		spec:    opts.Spec.Clone(),
		corpus:  opts.Corpus,
		logger:  opts.Logger.With("table", opts.Spec.Table),
	}, nil
}

func (e *Executor) Spec() schema.TableSpec { return e.spec.Clone() }

// Columns returns the learned column map, or nil before the first success.
func (e *Executor) Columns() resolve.ColumnMap {
	if s := e.learned.Load(); s != nil {
		return s.ColumnMap()
	}
	return nil
}

// Reset forgets the learned resolution.
func (e *Executor) Reset() { e.learned.Store(nil) }

// Fetch reads one page. The returned error is non-nil only when ctx is
// cancelled (AbortError) or req is malformed; every backend failure is
// reported in Result.Error alongside the fallback corpus.
func (e *Executor) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.Page < 1 || req.PageSize <= 0 {
		return nil, jberrors.NewError(jberrors.ErrInvalidRequest, "page must be >= 1 and pageSize > 0")
	}
	// offset+pageSize must fit in an int.
	if req.Page-1 > (math.MaxInt-req.PageSize)/req.PageSize {
		return nil, jberrors.NewError(jberrors.ErrInvalidRequest, "page is out of range")
	}
	filters := req.Filters.Clean()
	res := &Result{Page: req.Page, PageSize: req.PageSize}
	table := e.spec.Table

	md, err := e.prober.Probe(ctx, table)
	if err != nil {
		return nil, err
	}
	if md.Exists == metadata.Missing {
		info := md.Err
		if info == nil || info.Code != jberrors.ErrTableNotFound {
			info = jberrors.TableNotFound(table)
			info.Cause = md.Err
		}
		return e.fallback(res, req, filters, info), nil
	}

	state, unresolved := e.initialState(md)
	if len(unresolved) > 0 {
		return e.fallback(res, req, filters, jberrors.MissingColumns(unresolved)), nil
	}

	offset := (req.Page - 1) * req.PageSize
	caps := e.backend.Capabilities()
	var out backend.SelectResult
	var lastErr error
	ok := false
	for attempt := 1; attempt <= state.MaxAttempts()+1; attempt++ {
		res.Attempts = attempt
		out, lastErr = e.backend.Select(ctx, e.buildSelect(state, filters, offset, req.PageSize, caps))
		if lastErr == nil {
			ok = true
			break
		}

		c := classify.ClassifyContext(ctx, lastErr, table)
		switch c.Kind {
		case classify.Aborted:
			return nil, jberrors.Aborted(lastErr)
		case classify.ColumnMissing:
			next, handled, herr := state.HandleMissing(c.Column)
			if !handled {
				return e.fallback(res, req, filters, classify.Info(lastErr)), nil
			}
			if herr != nil {
				info := jberrors.Info(herr)
				info.Cause = lastErr
				return e.fallback(res, req, filters, info), nil
			}
			e.logger.Debug("column missing, retrying", "column", c.Column, "attempt", attempt)
			state = next
		default:
			return e.fallback(res, req, filters, infoFor(c, table, lastErr)), nil
		}
	}
	if !ok {
		return e.fallback(res, req, filters, classify.Info(lastErr)), nil
	}
	e.learned.Store(&state)

	rows := out.Rows
	if !caps.Range {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
		if len(rows) > req.PageSize {
			rows = rows[:req.PageSize]
		}
	}

	if len(rows) == 0 && !filters.Active() && req.Page == 1 {
		e.logger.Warn("live table empty without filters, serving fallback")
		return e.fallback(res, req, filters, nil), nil
	}

	cols := state.ColumnMap()
	res.Columns = cols
	res.Records = make([]record.Record, 0, len(rows))
	for _, r := range rows {
		res.Records = append(res.Records, record.Normalize(r, cols, e.spec))
	}
	res.TotalCount = out.Count
	if out.Count != nil {
		res.HasMore = int64(offset+req.PageSize) < *out.Count
	} else {
		// Imprecise when the table size is a multiple of the page size: one
		// extra, empty page gets requested.
		res.HasMore = len(rows) == req.PageSize
	}
	return res, nil
}

func (e *Executor) initialState(md metadata.TableMetadata) (resolve.State, []string) {
	if s := e.learned.Load(); s != nil {
		return *s, nil
	}
	if md.Exists == metadata.Exists && len(md.Columns) > 0 {
		return resolve.FromColumns(e.spec, md.Columns)
	}
	return resolve.Optimistic(e.spec), nil
}

func (e *Executor) buildSelect(state resolve.State, f Filters, offset, pageSize int, caps backend.Capabilities) backend.SelectRequest {
	cols := state.ColumnMap()
	req := backend.SelectRequest{
		Table:   e.spec.Table,
		Columns: state.Columns(),
		Count:   caps.Count,
	}

	if f.SearchTerm != "" {
		pattern := "%" + f.SearchTerm + "%"
		var anyOf []backend.Condition
		for _, c := range cols.Resolved(e.spec.SearchKeys) {
			anyOf = append(anyOf, backend.Condition{Column: c, Op: backend.OpILike, Value: pattern})
		}
		if len(anyOf) > 0 {
			req.Filters = append(req.Filters, backend.Filter{AnyOf: anyOf})
		}
	}

	keys := make([]string, 0, len(f.Categories))
	for k := range f.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		phys, ok := cols.Physical(k)
		if !ok {
			continue
		}
		vals := make([]any, len(f.Categories[k]))
		for i, v := range f.Categories[k] {
			vals[i] = v
		}
		req.Filters = append(req.Filters, backend.Filter{AnyOf: []backend.Condition{{Column: phys, Op: backend.OpIn, Values: vals}}})
	}

	if len(f.Locations) > 0 {
		var anyOf []backend.Condition
		for _, loc := range f.Locations {
			for _, c := range cols.Resolved(e.spec.LocationKeys) {
				anyOf = append(anyOf, backend.Condition{Column: c, Op: backend.OpILike, Value: "%" + loc + "%"})
			}
		}
		if len(anyOf) > 0 {
			req.Filters = append(req.Filters, backend.Filter{AnyOf: anyOf})
		}
	}

	if ordered := cols.Resolved(e.spec.OrderKeys); len(ordered) > 0 {
		req.Order = []backend.Order{{Column: ordered[0], Desc: true, NullsLast: true}}
	}

	if caps.Range {
		req.Offset = offset
		req.Limit = pageSize
		req.Ranged = true
	} else {
		req.Limit = offset + pageSize
	}
	return req
}

func (e *Executor) fallback(res *Result, req Request, f Filters, info *jberrors.Error) *Result {
	var rows []record.Record
	if req.FallbackRecords != nil {
		rows = make([]record.Record, 0, len(req.FallbackRecords))
		for _, r := range req.FallbackRecords {
			rows = append(rows, fallback.Normalize(r, e.spec))
		}
	} else {
		var err error
		rows, err = e.corpus.Records(e.spec.Table)
		if err != nil {
			e.logger.Error("load fallback corpus", "err", err)
		}
	}
	if f.Active() {
		rows = fallback.Filter(rows, func(r record.Record) bool { return record.Matches(r, e.spec, f) })
	}
	if rows == nil {
		rows = []record.Record{}
	}

	if info != nil {
		e.logger.Warn("serving fallback", "code", info.Code, "err", info.Error())
	}
	res.Records = rows
	res.Error = info
	res.FallbackUsed = true
	res.HasMore = false
	res.TotalCount = nil
	res.Columns = nil
	return res
}

func infoFor(c classify.Classification, table string, err error) *jberrors.Error {
	switch c.Kind {
	case classify.TableMissing:
		info := jberrors.TableNotFound(table)
		info.Cause = err
		return info
	case classify.Authorization:
		return classify.Info(jberrors.Wrap(jberrors.ErrAuthorization, "read rejected by backend policy", err))
	default:
		return classify.Info(err)
	}
}
