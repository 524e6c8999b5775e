// Package metadata answers whether a table exists and which columns it
// exposes, caching the answer per table.
package metadata

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/classify"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

type Prober struct {
	backend backend.Backend
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
}

// NewProber returns a prober over b. A nil cache gets a private one.
func NewProber(b backend.Backend, cache *Cache, logger *slog.Logger) *Prober {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{backend: b, cache: cache, logger: logger}
}

func (p *Prober) Cache() *Cache { return p.cache }

// Probe reports the existence of table. Only cancellation is returned as an
// error; every other failure is folded into an Unknown or Missing result.
func (p *Prober) Probe(ctx context.Context, table string) (TableMetadata, error) {
	if md, ok := p.cache.Get(table); ok {
		return md, nil
	}
	if !p.backend.Configured() {
		return p.cache.Store(TableMetadata{
			Table:  table,
			Exists: Missing,
			Err:    jberrors.NewError(jberrors.ErrNotConfigured, "backend not configured"),
		}), nil
	}

	ch := p.group.DoChan(table, func() (any, error) {
		return p.probe(ctx, table)
	})
	select {
	case <-ctx.Done():
		// A follower stops waiting; the shared probe runs on under its leader's ctx.
		return TableMetadata{Table: table}, jberrors.Aborted(ctx.Err())
	case r := <-ch:
		if r.Err != nil && r.Shared && ctx.Err() == nil {
			// Another caller's probe was cancelled; ours wasn't.
			return p.probe(ctx, table)
		}
		if r.Err != nil {
			return TableMetadata{Table: table}, r.Err
		}
		return r.Val.(TableMetadata), nil
	}
}

func (p *Prober) probe(ctx context.Context, table string) (TableMetadata, error) {
	if md, ok := p.cache.Get(table); ok {
		return md, nil
	}
	res, err := p.backend.Select(ctx, backend.SelectRequest{Table: table, Limit: 0})
	if err == nil {
		p.logger.Debug("probe", "table", table, "exists", true, "columns", len(res.Columns))
		return p.cache.Store(TableMetadata{Table: table, Columns: res.Columns, Exists: Exists}), nil
	}

	md := TableMetadata{Table: table}
	switch c := classify.ClassifyContext(ctx, err, table); c.Kind {
	case classify.Aborted:
		return md, jberrors.Aborted(err)
	case classify.TableMissing:
		md.Exists = Missing
		md.Err = jberrors.TableNotFound(table)
		md.Err.Cause = err
	default:
		md.Exists = Unknown
		md.Err = classify.Info(err)
	}
	p.logger.Debug("probe", "table", table, "exists", md.Exists.String(), "err", err)
	return p.cache.Store(md), nil
}
