// Package jobboard is the schema-adaptive data access layer of the job
// board: reads that heal around renamed columns, writes that prune them, and
// a static corpus that keeps results populated when the backend can't serve.
package jobboard

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/fallback"
	"github.com/nonibytes/jobboard/pkg/jobboard/metadata"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
	"github.com/nonibytes/jobboard/pkg/jobboard/paging"
	"github.com/nonibytes/jobboard/pkg/jobboard/pending"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/record"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

type ClientOptions struct {
	Logger *slog.Logger
	// Specs replaces the built-in table specs; nil uses jobs and companies.
	Specs  []schema.TableSpec
	Corpus *fallback.Corpus
	Cache  *metadata.Cache
	// PageSize is the session default.
	PageSize int
}

type Client struct {
	backend   backend.Backend
	prober    *metadata.Prober
	corpus    *fallback.Corpus
	executors map[string]*query.Executor
	writer    *mutate.Executor
	presence  *mutate.PresenceTracker
	pending   *pending.Queue
	pageSize  int
	logger    *slog.Logger
}

func NewClient(b backend.Backend, opts ClientOptions) (*Client, error) {
	if b == nil {
		b = backend.Unconfigured{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Corpus == nil {
		opts.Corpus = fallback.Bundled()
	}
	if opts.Specs == nil {
		opts.Specs = []schema.TableSpec{schema.Jobs(), schema.Companies()}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := opts.Logger.With("backend", b.Name())

	c := &Client{
		backend:   b,
		prober:    metadata.NewProber(b, opts.Cache, logger),
		corpus:    opts.Corpus,
		executors: make(map[string]*query.Executor, len(opts.Specs)),
		writer:    mutate.New(b, logger),
		presence:  mutate.NewPresenceTracker(),
		pending:   pending.NewQueue(),
		pageSize:  opts.PageSize,
		logger:    logger,
	}
	for _, spec := range opts.Specs {
		ex, err := query.New(query.Options{
			Backend: b,
			Prober:  c.prober,
			Spec:    spec,
			Corpus:  c.corpus,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		c.executors[spec.Table] = ex
	}
	return c, nil
}

func (c *Client) Backend() backend.Backend { return c.backend }
func (c *Client) Cache() *metadata.Cache   { return c.prober.Cache() }
func (c *Client) Pending() *pending.Queue  { return c.pending }
func (c *Client) Close() error             { return c.backend.Close() }

func (c *Client) Tables() []string {
	out := make([]string, 0, len(c.executors))
	for t := range c.executors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (c *Client) executor(table string) (*query.Executor, error) {
	ex, ok := c.executors[table]
	if !ok {
		return nil, jberrors.NewError(jberrors.ErrInvalidRequest, "no field spec for table "+table)
	}
	return ex, nil
}

// Spec returns the field spec the client reads table with.
func (c *Client) Spec(table string) (schema.TableSpec, error) {
	ex, err := c.executor(table)
	if err != nil {
		return schema.TableSpec{}, err
	}
	return ex.Spec(), nil
}

// Columns returns the column map learned for table, nil before a success.
func (c *Client) Columns(table string) (map[string]string, error) {
	ex, err := c.executor(table)
	if err != nil {
		return nil, err
	}
	return ex.Columns(), nil
}

func (c *Client) Fetch(ctx context.Context, table string, req query.Request) (*query.Result, error) {
	ex, err := c.executor(table)
	if err != nil {
		return nil, err
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}
	return ex.Fetch(ctx, req)
}

func (c *Client) FetchJobs(ctx context.Context, req query.Request) (*query.Result, error) {
	return c.Fetch(ctx, schema.JobsTable, req)
}

func (c *Client) FetchCompanies(ctx context.Context, req query.Request) (*query.Result, error) {
	return c.Fetch(ctx, schema.CompaniesTable, req)
}

type Overview struct {
	Jobs      *query.Result `json:"jobs"`
	Companies *query.Result `json:"companies"`
}

// Overview loads jobs and companies concurrently. Each load falls back on its
// own; only cancellation fails the pair.
func (c *Client) Overview(ctx context.Context, jobs, companies query.Request) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.FetchJobs(gctx, jobs)
		out.Jobs = res
		return err
	})
	g.Go(func() error {
		res, err := c.FetchCompanies(gctx, companies)
		out.Companies = res
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

func (c *Client) Probe(ctx context.Context, table string) (metadata.TableMetadata, error) {
	return c.prober.Probe(ctx, table)
}

// Write runs req through the mutation executor with this client's column
// presence map, so a column pruned once is skipped by later writes.
func (c *Client) Write(ctx context.Context, req mutate.Request) (*mutate.Result, error) {
	return c.writer.Write(ctx, c.presence.Bind(req))
}

// Presence returns what writes have learned about table's columns.
func (c *Client) Presence(table string) map[string]bool {
	return c.presence.Snapshot(table)
}

type SaveResult struct {
	*mutate.Result
	// Pending is set when the backend refused the write on authorization
	// grounds and it was queued for a later sync.
	Pending *pending.Item `json:"pending,omitempty"`
}

// Save is Write with degraded success: an authorization rejection queues the
// intended record as pending-sync instead of failing.
func (c *Client) Save(ctx context.Context, req mutate.Request) (SaveResult, error) {
	res, err := c.Write(ctx, req)
	if err != nil {
		return SaveResult{}, err
	}
	out := SaveResult{Result: res}
	if res.Error != nil && res.Error.Code == jberrors.ErrAuthorization {
		it, err := c.pending.Add(mutate.Request{Table: req.Table, Payload: res.FinalPayload, OnConflict: req.OnConflict}, res.Error)
		if err != nil {
			return out, err
		}
		c.logger.Info("write queued as pending", "table", req.Table, "id", it.ID)
		out.Pending = &it
	}
	return out, nil
}

// FlushPending retries queued writes.
func (c *Client) FlushPending(ctx context.Context) (pending.FlushReport, error) {
	return c.pending.Flush(ctx, c)
}

// NewSession starts a paging session over table. Unfiltered live pages are
// merged with the static corpus unless opts.Static is set.
func (c *Client) NewSession(table string, opts paging.Options) (*paging.Session, error) {
	ex, err := c.executor(table)
	if err != nil {
		return nil, err
	}
	if opts.PageSize <= 0 {
		opts.PageSize = c.pageSize
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	if opts.Static == nil {
		opts.Static = func() ([]record.Record, error) { return c.corpus.Records(table) }
	}
	return paging.NewSession(ex, opts), nil
}
