package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/classify"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

func TestMapError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42703", Message: `column "salary_min_value" does not exist`, Hint: `Perhaps you meant to reference the column "jobs.salary_min".`}
	err := MapError(fmt.Errorf("query: %w", pgErr))
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "42703", be.Code)
	assert.Contains(t, be.Hint, "salary_min")
	c := classify.Classify(err, "jobs")
	assert.Equal(t, classify.ColumnMissing, c.Kind)
	assert.Equal(t, "salary_min_value", c.Column)

	err = MapError(errors.New("conn closed"))
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "conn closed", be.Message)
}

func TestOpenValidates(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Options{})
	assert.True(t, jberrors.IsCode(err, jberrors.ErrNotConfigured))
	_, err = Open(ctx, Options{DSN: "postgres://localhost/db", Schema: "bad-schema"})
	assert.True(t, jberrors.IsCode(err, jberrors.ErrNotConfigured))
	_, err = Open(ctx, Options{DSN: "::not a dsn::"})
	assert.True(t, jberrors.IsCode(err, jberrors.ErrNotConfigured))
}

// Runs against a real server when JOBBOARD_TEST_POSTGRES_DSN is set.
func TestDriftedTableIntegration(t *testing.T) {
	dsn := os.Getenv("JOBBOARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOBBOARD_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schemaName := fmt.Sprintf("jobboard_test_%d", time.Now().UnixNano())
	b, err := Open(ctx, Options{DSN: dsn, Schema: schemaName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = b.DB.Exec(`DROP SCHEMA IF EXISTS "` + schemaName + `" CASCADE`)
		_ = b.Close()
	})
	_, err = b.DB.ExecContext(ctx, `CREATE SCHEMA "`+schemaName+`"`)
	require.NoError(t, err)
	_, err = b.DB.ExecContext(ctx, `
		CREATE TABLE jobs (
			id text PRIMARY KEY,
			job_title text NOT NULL,
			salary_min numeric,
			skills text[],
			published_at timestamptz
		);
		INSERT INTO jobs VALUES
			('j1', 'Data Engineer', 100000, '{python,sql}', '2026-10-01T08:00:00Z'),
			('j2', 'Designer', NULL, '{}', '2026-10-02T08:00:00Z');`)
	require.NoError(t, err)

	ex, err := query.New(query.Options{Backend: b, Spec: schema.Jobs()})
	require.NoError(t, err)
	res, err := ex.Fetch(ctx, query.Request{Page: 1, PageSize: 10, Filters: query.Filters{SearchTerm: "engineer"}})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Data Engineer", res.Records[0]["title"])
	assert.Equal(t, []any{"python", "sql"}, res.Records[0]["skills"])

	w, err := mutate.New(b, nil).Write(ctx, mutate.Request{
		Table:   "jobs",
		Payload: map[string]any{"id": "j3", "job_title": "SRE", "skills": []any{"k8s"}, "legacy_field": 1},
	})
	require.NoError(t, err)
	require.Nil(t, w.Error)
	assert.Equal(t, []string{"legacy_field"}, w.Removed)
}
