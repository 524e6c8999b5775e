// Package postgrest talks to a Supabase/PostgREST endpoint over HTTP.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

type Options struct {
	// URL is the project URL; requests go to URL + "/rest/v1".
	URL    string
	APIKey string
	// Schema selects a non-default exposed schema via Accept-Profile.
	Schema string

	HTTPClient *http.Client
	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

type Backend struct {
	base    string
	apiKey  string
	schema  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

func New(opts Options) (*Backend, error) {
	if opts.URL == "" || opts.APIKey == "" {
		return nil, jberrors.NewError(jberrors.ErrNotConfigured, "postgrest url and api key are required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, jberrors.NewError(jberrors.ErrNotConfigured, "invalid postgrest url: "+opts.URL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &Backend{
		base:   strings.TrimRight(opts.URL, "/") + "/rest/v1",
		apiKey: opts.APIKey,
		schema: opts.Schema,
		client: opts.HTTPClient,
		logger: opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return b, nil
}

func (b *Backend) Name() string     { return "postgrest" }
func (b *Backend) Configured() bool { return true }
func (b *Backend) Close() error     { return nil }

// Capabilities: a zero-row response carries no column names.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Range: true, Count: true, ExposesColumns: false, Upsert: true}
}

func (b *Backend) Select(ctx context.Context, req backend.SelectRequest) (backend.SelectResult, error) {
	q := url.Values{}
	if len(req.Columns) > 0 {
		q.Set("select", strings.Join(req.Columns, ","))
	} else {
		q.Set("select", "*")
	}
	encodeFilters(q, req.Filters)
	if len(req.Order) > 0 {
		parts := make([]string, len(req.Order))
		for i, o := range req.Order {
			p := o.Column
			if o.Desc {
				p += ".desc"
			} else {
				p += ".asc"
			}
			if o.NullsLast {
				p += ".nullslast"
			}
			parts[i] = p
		}
		q.Set("order", strings.Join(parts, ","))
	}

	header := http.Header{}
	if req.Ranged && req.Limit > 0 {
		header.Set("Range-Unit", "items")
		header.Set("Range", fmt.Sprintf("%d-%d", req.Offset, req.Offset+req.Limit-1))
	} else {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Count {
		header.Set("Prefer", "count=exact")
	}

	resp, body, err := b.do(ctx, http.MethodGet, req.Table, q, header, nil)
	if err != nil && rangeNotSatisfiable(resp, err) {
		// A range past the end (rows deleted between pages) is an empty page.
		res := backend.SelectResult{Rows: []map[string]any{}}
		if req.Count {
			res.Count = parseContentRange(resp.Header.Get("Content-Range"))
		}
		return res, nil
	}
	if err != nil {
		return backend.SelectResult{}, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return backend.SelectResult{}, &backend.Error{Message: "decode response: " + err.Error(), Status: resp.StatusCode, Cause: err}
	}
	res := backend.SelectResult{Rows: rows}
	if req.Count {
		res.Count = parseContentRange(resp.Header.Get("Content-Range"))
	}
	return res, nil
}

func (b *Backend) Write(ctx context.Context, req backend.WriteRequest) (map[string]any, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, jberrors.Wrap(jberrors.ErrInvalidRequest, "encode payload", err)
	}
	q := url.Values{}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	prefer := "return=representation"
	if req.OnConflict != "" {
		q.Set("on_conflict", req.OnConflict)
		prefer = "resolution=merge-duplicates," + prefer
	}
	header.Set("Prefer", prefer)

	_, out, err := b.do(ctx, http.MethodPost, req.Table, q, header, body)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, &backend.Error{Message: "decode response: " + err.Error(), Cause: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (b *Backend) do(ctx context.Context, method, table string, q url.Values, header http.Header, body []byte) (*http.Response, []byte, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, nil, &backend.Error{Message: "rate limit wait: " + err.Error(), Cause: ctxErr(ctx, err)}
		}
	}
	u := b.base + "/" + url.PathEscape(table)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, nil, &backend.Error{Message: err.Error(), Cause: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("apikey", b.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if b.schema != "" {
		if method == http.MethodGet {
			httpReq.Header.Set("Accept-Profile", b.schema)
		} else {
			httpReq.Header.Set("Content-Profile", b.schema)
		}
	}

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, nil, &backend.Error{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &backend.Error{Message: "read response: " + err.Error(), Status: resp.StatusCode, Cause: err}
	}
	b.logger.Debug("postgrest",
		"method", method,
		"table", table,
		"status", resp.StatusCode,
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)
	if resp.StatusCode >= 300 {
		return resp, nil, decodeError(resp.StatusCode, out)
	}
	return resp, out, nil
}

func rangeNotSatisfiable(resp *http.Response, err error) bool {
	if resp == nil {
		return false
	}
	var be *backend.Error
	return resp.StatusCode == http.StatusRequestedRangeNotSatisfiable ||
		(errors.As(err, &be) && be.Code == "PGRST103")
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func decodeError(status int, body []byte) error {
	e := &backend.Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	return e
}

// parseContentRange reads the total from "0-19/57" or "*/0"; nil when the
// server didn't count.
func parseContentRange(h string) *int64 {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return nil
	}
	n, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
