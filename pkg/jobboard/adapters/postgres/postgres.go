// Package postgres connects the jobboard to a Postgres database through pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/sqlstore"
	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

type Options struct {
	DSN string
	// Schema is put first on the search_path; empty keeps the server default.
	Schema string
	Logger *slog.Logger
}

type Backend struct {
	*sqlstore.Store
	schema string
}

var _ backend.Backend = (*Backend)(nil)

// Open parses the DSN, pins search_path and pings the server.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.DSN == "" {
		return nil, jberrors.NewError(jberrors.ErrNotConfigured, "postgres dsn is empty")
	}
	cfg, err := pgx.ParseConfig(opts.DSN)
	if err != nil {
		return nil, jberrors.Wrap(jberrors.ErrNotConfigured, "parse postgres dsn", err)
	}
	if opts.Schema != "" {
		if !sqlstore.ValidIdent(opts.Schema) {
			return nil, jberrors.NewError(jberrors.ErrNotConfigured, fmt.Sprintf("invalid postgres schema name %q", opts.Schema))
		}
		if cfg.RuntimeParams == nil {
			cfg.RuntimeParams = make(map[string]string)
		}
		// public stays on the path for built-ins.
		cfg.RuntimeParams["search_path"] = sqlstore.Postgres.Quote(opts.Schema) + ",public"
	}

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, jberrors.Wrap(jberrors.ErrBackend, "connect postgres", err)
	}
	return New(db, opts.Schema, opts.Logger), nil
}

// New wraps an already open database.
func New(db *sql.DB, schema string, logger *slog.Logger) *Backend {
	return &Backend{
		Store: &sqlstore.Store{
			DB:       db,
			Dialect:  sqlstore.Postgres,
			Logger:   logger,
			MapError: MapError,
		},
		schema: schema,
	}
}

func (b *Backend) Name() string     { return "postgres" }
func (b *Backend) Configured() bool { return b.Store != nil && b.DB != nil }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Range: true, Count: true, ExposesColumns: true, Upsert: true}
}

// MapError exposes SQLSTATE, detail and hint of a server error.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Cause:   err,
		}
	}
	return &backend.Error{Message: err.Error(), Cause: err}
}
