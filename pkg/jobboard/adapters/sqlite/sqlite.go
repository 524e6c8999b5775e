// Package sqlite serves the jobboard from a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	// Pure Go driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/sqlstore"
	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

const (
	// DriverModernc is the pure Go driver and the default.
	DriverModernc = "sqlite"
	// DriverCgo is mattn/go-sqlite3.
	DriverCgo = "sqlite3"
)

type Options struct {
	Path       string
	DriverName string
	Logger     *slog.Logger
}

type Backend struct {
	*sqlstore.Store
	path   string
	driver string
}

var _ backend.Backend = (*Backend)(nil)

func Open(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Path == "" {
		return nil, jberrors.NewError(jberrors.ErrNotConfigured, "sqlite path is empty")
	}
	driver := opts.DriverName
	if driver == "" {
		driver = DriverModernc
	}
	db, err := sql.Open(driver, dsn(driver, opts.Path))
	if err != nil {
		return nil, jberrors.Wrap(jberrors.ErrNotConfigured, "open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, jberrors.Wrap(jberrors.ErrBackend, "connect sqlite", err)
	}
	b := New(db, opts.Logger)
	b.path = opts.Path
	b.driver = driver
	return b, nil
}

func dsn(driver, path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if driver == DriverModernc {
		return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

func New(db *sql.DB, logger *slog.Logger) *Backend {
	return &Backend{Store: &sqlstore.Store{
		DB:      db,
		Dialect: sqlstore.SQLite,
		Logger:  logger,
	}}
}

func (b *Backend) Name() string     { return "sqlite" }
func (b *Backend) Configured() bool { return b.Store != nil && b.DB != nil }
func (b *Backend) Path() string     { return b.path }
func (b *Backend) Driver() string   { return b.driver }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Range: true, Count: true, ExposesColumns: true, Upsert: true}
}
