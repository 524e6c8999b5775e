// Package paging accumulates pages of one query session and decides what the
// caller sees: live pages, the static corpus, or their merge.
package paging

import (
	"context"
	"log/slog"
	"sync"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/fallback"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/record"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

// Fetcher is satisfied by *query.Executor.
type Fetcher interface {
	Fetch(ctx context.Context, req query.Request) (*query.Result, error)
	Spec() schema.TableSpec
}

// PageState holds the live rows fetched so far; Pages[i] is page i+1.
type PageState struct {
	Pages         [][]record.Record `json:"pages"`
	HasMore       bool              `json:"hasMore"`
	RequestedPage int               `json:"requestedPage"`
}

// Live flattens the pages in page order.
func (p PageState) Live() []record.Record {
	var out []record.Record
	for _, page := range p.Pages {
		out = append(out, page...)
	}
	return out
}

type View struct {
	Records      []record.Record `json:"records"`
	Error        *jberrors.Error `json:"error"`
	FallbackUsed bool            `json:"fallbackUsed"`
	HasMore      bool            `json:"hasMore"`
	TotalCount   *int64          `json:"totalCount"`
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
}

type Options struct {
	PageSize int
	Filters  query.Filters
	// Static supplies the corpus merged under unfiltered live pages.
	Static func() ([]record.Record, error)
	Logger *slog.Logger
}

const DefaultPageSize = 20

type Session struct {
	fetcher  Fetcher
	identity string
	pageSize int
	static   func() ([]record.Record, error)
	logger   *slog.Logger

	// fetchMu orders page loads: page N+1 starts after page N resolved.
	fetchMu sync.Mutex

	mu           sync.Mutex
	generation   uint64
	cancel       context.CancelFunc
	filters      query.Filters
	state        PageState
	fallbackUsed bool
	fallbackRows []record.Record
	err          *jberrors.Error
	total        *int64
}

func NewSession(f Fetcher, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	spec := f.Spec()
	return &Session{
		fetcher:  f,
		identity: spec.Identity,
		pageSize: opts.PageSize,
		static:   opts.Static,
		logger:   opts.Logger.With("table", spec.Table),
		filters:  opts.Filters.Clean(),
	}
}

// Load resets the session and fetches page 1.
func (s *Session) Load(ctx context.Context) (View, error) {
	s.reset(nil)
	return s.fetch(ctx, true)
}

// Refresh is Load under the current filters.
func (s *Session) Refresh(ctx context.Context) (View, error) { return s.Load(ctx) }

// SetFilters replaces the filter set, supersedes any in-flight load and
// fetches page 1.
func (s *Session) SetFilters(ctx context.Context, f query.Filters) (View, error) {
	f = f.Clean()
	s.reset(&f)
	return s.fetch(ctx, true)
}

// LoadMore fetches the next page. It is a no-op when nothing more is known
// to exist or the session is serving the fallback corpus.
func (s *Session) LoadMore(ctx context.Context) (View, error) {
	return s.fetch(ctx, false)
}

func (s *Session) reset(f *query.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if f != nil {
		s.filters = *f
	}
	s.state = PageState{}
	s.fallbackUsed = false
	s.fallbackRows = nil
	s.err = nil
	s.total = nil
}

func (s *Session) fetch(ctx context.Context, first bool) (View, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	s.mu.Lock()
	gen := s.generation
	filters := s.filters
	page := 1
	if !first {
		if len(s.state.Pages) == 0 || !s.state.HasMore || s.fallbackUsed {
			v := s.viewLocked()
			s.mu.Unlock()
			return v, nil
		}
		page = len(s.state.Pages) + 1
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state.RequestedPage = page
	s.mu.Unlock()

	res, err := s.fetcher.Fetch(fctx, query.Request{Filters: filters, Page: page, PageSize: s.pageSize})
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("discarding superseded page", "page", page)
		return s.viewLocked(), jberrors.NewError(jberrors.ErrAbort, "superseded by a newer load")
	}
	s.cancel = nil
	if err != nil {
		return s.viewLocked(), err
	}

	if res.FallbackUsed {
		// Accumulated pages are not trustworthy once we switch to fallback.
		s.state = PageState{RequestedPage: page}
		s.fallbackUsed = true
		s.fallbackRows = res.Records
		s.err = res.Error
		s.total = nil
		return s.viewLocked(), nil
	}
	if page == 1 {
		s.state.Pages = nil
	}
	s.state.Pages = append(s.state.Pages, res.Records)
	s.state.HasMore = res.HasMore
	s.fallbackUsed = false
	s.fallbackRows = nil
	s.err = res.Error
	s.total = res.TotalCount
	return s.viewLocked(), nil
}

func (s *Session) State() PageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Pages = append([][]record.Record(nil), s.state.Pages...)
	return out
}

func (s *Session) Filters() query.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		Error:        s.err,
		FallbackUsed: s.fallbackUsed,
		HasMore:      s.state.HasMore,
		TotalCount:   s.total,
		Page:         len(s.state.Pages),
		PageSize:     s.pageSize,
	}
	switch {
	case s.fallbackUsed:
		v.Records = append([]record.Record(nil), s.fallbackRows...)
		v.HasMore = false
		v.Page = s.state.RequestedPage
	case !s.filters.Active() && s.static != nil && len(s.state.Pages) > 0:
		static, err := s.static()
		if err != nil {
			s.logger.Warn("static corpus unavailable for merge", "err", err)
		}
		v.Records = fallback.Merge(s.state.Live(), static, s.identity)
	default:
		v.Records = s.state.Live()
	}
	if v.Records == nil {
		v.Records = []record.Record{}
	}
	return v
}
