package jobboard

import (
	"context"
	"log/slog"
	"os"

	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/memory"
	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/postgres"
	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/postgrest"
	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/sqlite"
	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/fallback"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

type OpenOptions struct {
	Backend string

	SQLitePath   string
	SQLiteDriver string

	PostgresDSN    string
	PostgresSchema string

	SupabaseURL       string
	SupabaseKey       string
	SupabaseSchema    string
	RequestsPerSecond float64
	Burst             int

	// FieldsFile is a YAML file of field overrides (extra fallbacks).
	FieldsFile string
	PageSize   int
	Logger     *slog.Logger
}

// OpenOptionsFromCLI converts the loaded CLI configuration into open options.
func OpenOptionsFromCLI(g cliopt.GlobalOptions) OpenOptions {
	c := g.Config
	return OpenOptions{
		Backend:           c.Backend,
		SQLitePath:        c.SQLite.Path,
		SQLiteDriver:      c.SQLite.Driver,
		PostgresDSN:       c.Postgres.DSN,
		PostgresSchema:    c.Postgres.Schema,
		SupabaseURL:       c.Supabase.URL,
		SupabaseKey:       c.Supabase.AnonKey,
		SupabaseSchema:    c.Supabase.Schema,
		RequestsPerSecond: c.Supabase.RequestsPerSecond,
		Burst:             c.Supabase.Burst,
		FieldsFile:        c.FieldsFile,
		PageSize:          c.PageSize,
	}
}

// Open selects a backend implementation. An empty Backend serves every read
// from the static corpus.
func Open(ctx context.Context, opts OpenOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	specs, err := loadSpecs(opts.FieldsFile)
	if err != nil {
		return nil, err
	}
	corpus := fallback.Bundled()

	var b backend.Backend
	switch opts.Backend {
	case BackendNone:
		b = backend.Unconfigured{}
	case BackendSQLite:
		b, err = sqlite.Open(ctx, sqlite.Options{Path: opts.SQLitePath, DriverName: opts.SQLiteDriver, Logger: opts.Logger})
	case BackendPostgres:
		b, err = postgres.Open(ctx, postgres.Options{DSN: opts.PostgresDSN, Schema: opts.PostgresSchema, Logger: opts.Logger})
	case BackendPostgREST:
		b, err = postgrest.New(postgrest.Options{
			URL:               opts.SupabaseURL,
			APIKey:            opts.SupabaseKey,
			Schema:            opts.SupabaseSchema,
			RequestsPerSecond: opts.RequestsPerSecond,
			Burst:             opts.Burst,
			Logger:            opts.Logger,
		})
	case BackendMemory:
		b, err = seededMemory(specs, corpus)
	default:
		return nil, NewError(ErrNotConfigured, "unknown backend: "+opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewClient(b, ClientOptions{Logger: opts.Logger, Specs: specs, Corpus: corpus, PageSize: opts.PageSize})
}

func loadSpecs(fieldsFile string) ([]schema.TableSpec, error) {
	specs := []schema.TableSpec{schema.Jobs(), schema.Companies()}
	if fieldsFile == "" {
		return specs, nil
	}
	f, err := os.Open(fieldsFile)
	if err != nil {
		return nil, Wrap(ErrSchema, "open fields file", err)
	}
	defer f.Close()
	overrides, err := schema.LoadOverrides(f)
	if err != nil {
		return nil, err
	}
	for i := range specs {
		if specs[i], err = specs[i].WithOverrides(overrides); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// seededMemory builds an in-process backend whose tables carry every primary
// column and hold the static corpus.
func seededMemory(specs []schema.TableSpec, corpus *fallback.Corpus) (*memory.Backend, error) {
	m := memory.New()
	for _, spec := range specs {
		cols := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			cols[i] = f.Primary
		}
		m.CreateTable(spec.Table, cols...)
		rows, err := corpus.Records(spec.Table)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			row := make(map[string]any, len(spec.Fields))
			for _, f := range spec.Fields {
				row[f.Primary] = r[f.Key]
			}
			if err := m.Seed(spec.Table, row); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
