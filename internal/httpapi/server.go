// Package httpapi exposes the jobboard client over HTTP for the web front end.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nonibytes/jobboard/pkg/jobboard"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

// statusClientClosed is reported when the caller went away mid-request.
const statusClientClosed = 499

type Options struct {
	Addr        string
	CORSOrigins []string
	Logger      *slog.Logger
}

type Server struct {
	client *jobboard.Client
	opts   Options
	logger *slog.Logger
}

func New(client *jobboard.Client, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{client: client, opts: opts, logger: opts.Logger}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "backend": s.client.Backend().Name()})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.handleList(schema.JobsTable))
		r.Get("/companies", s.handleList(schema.CompaniesTable))
		r.Get("/overview", s.handleOverview)
		r.Get("/tables/{table}/probe", s.handleProbe)
		r.Post("/tables/{table}/rows", s.handleWrite)
		r.Get("/pending", s.handlePending)
		r.Post("/pending/flush", s.handleFlush)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", s.opts.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleList(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec, err := s.client.Spec(table)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req, err := parseRequest(r, spec)
		if err != nil {
			s.writeError(w, err)
			return
		}
		res, err := s.client.Fetch(r.Context(), table, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	size := jobboard.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, jobboard.NewError(jobboard.ErrInvalidRequest, "limit must be an integer"))
			return
		}
		size = n
	}
	req := query.Request{Page: 1, PageSize: size}
	ov, err := s.client.Overview(r.Context(), req, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	md, err := s.client.Probe(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

type writeBody struct {
	Payload    map[string]any `json:"payload"`
	OnConflict string         `json:"onConflict"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var body writeBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, jobboard.Wrap(jobboard.ErrInvalidRequest, "decode body", err))
		return
	}
	res, err := s.client.Save(r.Context(), mutate.Request{
		Table:      chi.URLParam(r, "table"),
		Payload:    body.Payload,
		OnConflict: body.OnConflict,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	switch {
	case res.Pending != nil:
		status = http.StatusAccepted
	case res.Error != nil:
		status = statusFor(res.Error.Code)
	}
	writeJSON(w, status, res)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.client.Pending().List()})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	report, err := s.client.FlushPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseRequest reads page, limit, q, repeated location and one parameter per
// category key (comma-separated values).
func parseRequest(r *http.Request, spec schema.TableSpec) (query.Request, error) {
	q := r.URL.Query()
	req := query.Request{Page: 1, PageSize: jobboard.DefaultPageSize}
	for name, dst := range map[string]*int{"page": &req.Page, "limit": &req.PageSize} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return query.Request{}, jobboard.NewError(jobboard.ErrInvalidRequest, name+" must be an integer")
			}
			*dst = n
		}
	}
	req.Filters.SearchTerm = q.Get("q")
	req.Filters.Locations = q["location"]
	for _, key := range spec.CategoryKeys {
		for _, v := range q[key] {
			for _, part := range strings.Split(v, ",") {
				if req.Filters.Categories == nil {
					req.Filters.Categories = make(map[string][]string)
				}
				req.Filters.Categories[key] = append(req.Filters.Categories[key], part)
			}
		}
	}
	req.Filters = req.Filters.Clean()
	return req, nil
}

func statusFor(code jobboard.ErrorCode) int {
	switch code {
	case jobboard.ErrInvalidRequest, jobboard.ErrSchema:
		return http.StatusBadRequest
	case jobboard.ErrAuthorization:
		return http.StatusForbidden
	case jobboard.ErrTableNotFound:
		return http.StatusNotFound
	case jobboard.ErrMissingColumns:
		return http.StatusUnprocessableEntity
	case jobboard.ErrNotConfigured:
		return http.StatusServiceUnavailable
	case jobboard.ErrAbort:
		return statusClientClosed
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *jobboard.Error
	if !errors.As(err, &e) {
		e = jobboard.Wrap(jobboard.ErrBackend, err.Error(), err)
	}
	status := statusFor(e.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", e.Code, "err", err)
	}
	writeJSON(w, status, map[string]any{"error": e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
