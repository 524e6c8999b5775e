package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/classify"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

const driftedSchema = `
CREATE TABLE jobs (
	id TEXT PRIMARY KEY,
	job_title TEXT NOT NULL,
	employer TEXT,
	city TEXT,
	salary_min_chf INTEGER,
	featured INTEGER,
	tags TEXT,
	published_at TEXT
);
INSERT INTO jobs VALUES
	('j1', 'Data Engineer', 'Rheinwerk', 'Basel', 110000, 1, '["python","sql"]', '2026-10-01'),
	('j2', 'Product Designer', 'Lémanique', 'Lausanne', 95000, 0, '[]', '2026-10-03'),
	('j3', 'Platform Engineer', 'Alpenlink', 'Zürich', NULL, 0, NULL, '2026-10-02');
`

func openTest(t *testing.T, driver string) *Backend {
	t.Helper()
	ctx := context.Background()
	b, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "jobs.db"), DriverName: driver})
	if err != nil && driver == DriverCgo {
		t.Skipf("cgo sqlite unavailable: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	_, err = b.DB.ExecContext(ctx, driftedSchema)
	require.NoError(t, err)
	return b
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
}

func TestProbeSelectExposesColumns(t *testing.T) {
	b := openTest(t, DriverModernc)
	res, err := b.Select(context.Background(), backend.SelectRequest{Table: "jobs", Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"id", "job_title", "employer", "city", "salary_min_chf", "featured", "tags", "published_at"}, res.Columns)

	_, err = b.Select(context.Background(), backend.SelectRequest{Table: "companies", Limit: 0})
	require.Error(t, err)
	assert.Equal(t, classify.TableMissing, classify.Classify(err, "companies").Kind)
}

func TestSelectMissingColumnIsClassified(t *testing.T) {
	b := openTest(t, DriverModernc)
	_, err := b.Select(context.Background(), backend.SelectRequest{Table: "jobs", Columns: []string{"id", "title"}, Limit: 1})
	require.Error(t, err)
	c := classify.Classify(err, "jobs")
	assert.Equal(t, classify.ColumnMissing, c.Kind)
	assert.Equal(t, "title", c.Column)
}

func TestSelectFiltersOrderAndCount(t *testing.T) {
	b := openTest(t, DriverModernc)
	res, err := b.Select(context.Background(), backend.SelectRequest{
		Table:   "jobs",
		Columns: []string{"id", "job_title"},
		Filters: []backend.Filter{
			{AnyOf: []backend.Condition{{Column: "job_title", Op: backend.OpILike, Value: "%ENGINEER%"}}},
		},
		Order:  []backend.Order{{Column: "published_at", Desc: true, NullsLast: true}},
		Limit:  1,
		Offset: 1,
		Ranged: true,
		Count:  true,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "j1", res.Rows[0]["id"])
	require.NotNil(t, res.Count)
	assert.EqualValues(t, 2, *res.Count)
}

func TestSelectRejectsBadIdentifiers(t *testing.T) {
	b := openTest(t, DriverModernc)
	_, err := b.Select(context.Background(), backend.SelectRequest{Table: "jobs; DROP TABLE jobs", Limit: 1})
	require.Error(t, err)
	_, err = b.Select(context.Background(), backend.SelectRequest{Table: "jobs", Columns: []string{"id`"}, Limit: 1})
	require.Error(t, err)
}

func TestQueryAgainstDriftedTable(t *testing.T) {
	b := openTest(t, DriverModernc)
	ex, err := query.New(query.Options{Backend: b, Spec: schema.Jobs()})
	require.NoError(t, err)

	res, err := ex.Fetch(context.Background(), query.Request{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.False(t, res.FallbackUsed)
	// Column list came from the probe, so no retries.
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Records, 3)

	first := res.Records[0]
	assert.Equal(t, "j2", first["id"])
	assert.Equal(t, "Product Designer", first["title"])
	assert.Equal(t, "Lémanique", first["company_name"])
	assert.Equal(t, int64(95000), first["salary_min_value"])
	assert.Equal(t, false, first["is_featured"])
	assert.Equal(t, []any{}, first["skills"])

	last := res.Records[2]
	assert.Equal(t, []any{"python", "sql"}, last["skills"])
	assert.Equal(t, true, last["is_featured"])
	require.NotNil(t, res.TotalCount)
	assert.EqualValues(t, 3, *res.TotalCount)
}

func TestWritePrunesAgainstRealTable(t *testing.T) {
	b := openTest(t, DriverModernc)
	res, err := mutate.New(b, nil).Write(context.Background(), mutate.Request{
		Table: "jobs",
		Payload: map[string]any{
			"id":           "j4",
			"job_title":    "SRE",
			"tags":         []any{"k8s"},
			"featured":     true,
			"legacy_field": "x",
		},
	})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, []string{"legacy_field"}, res.Removed)
	assert.Equal(t, "SRE", res.Data["job_title"])
	assert.Equal(t, `["k8s"]`, res.Data["tags"])
	assert.EqualValues(t, 1, res.Data["featured"])

	// Upsert updates in place.
	res, err = mutate.New(b, nil).Write(context.Background(), mutate.Request{
		Table:      "jobs",
		Payload:    map[string]any{"id": "j4", "job_title": "Site Reliability Engineer"},
		OnConflict: "id",
	})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	var title string
	require.NoError(t, b.DB.QueryRow("SELECT job_title FROM jobs WHERE id = 'j4'").Scan(&title))
	assert.Equal(t, "Site Reliability Engineer", title)
}

func TestCgoDriver(t *testing.T) {
	b := openTest(t, DriverCgo)
	assert.Equal(t, DriverCgo, b.Driver())
	res, err := b.Select(context.Background(), backend.SelectRequest{Table: "jobs", Columns: []string{"id"}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
}
