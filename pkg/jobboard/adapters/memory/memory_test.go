package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
)

func seeded(t *testing.T) *Backend {
	t.Helper()
	b := New()
	b.CreateTable("jobs", "id", "title", "salary", "posted_at")
	require.NoError(t, b.Seed("jobs",
		map[string]any{"id": "a", "title": "Data Engineer", "salary": 90000, "posted_at": "2026-10-01"},
		map[string]any{"id": "b", "title": "Designer", "salary": nil, "posted_at": "2026-10-03"},
		map[string]any{"id": "c", "title": "Platform Engineer", "salary": 120000.5, "posted_at": nil},
	))
	return b
}

func TestLikeMatch(t *testing.T) {
	cases := []struct {
		s, pattern string
		want       bool
	}{
		{"data engineer", "%engineer%", true},
		{"data engineer", "data%", true},
		{"data engineer", "%data", false},
		{"abc", "a_c", true},
		{"ac", "a_c", false},
		{"", "%", true},
		{"", "", true},
		{"x", "", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, likeMatch(c.s, c.pattern), "%q LIKE %q", c.s, c.pattern)
	}
}

func TestSelectOrdersWithNullsLast(t *testing.T) {
	b := seeded(t)
	res, err := b.Select(context.Background(), backend.SelectRequest{
		Table:   "jobs",
		Columns: []string{"id"},
		Order:   []backend.Order{{Column: "posted_at", Desc: true, NullsLast: true}},
		Limit:   10,
		Ranged:  true,
	})
	require.NoError(t, err)
	ids := []any{res.Rows[0]["id"], res.Rows[1]["id"], res.Rows[2]["id"]}
	assert.Equal(t, []any{"b", "a", "c"}, ids)

	res, err = b.Select(context.Background(), backend.SelectRequest{
		Table:   "jobs",
		Columns: []string{"id"},
		Order:   []backend.Order{{Column: "salary"}},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Rows[0]["id"])
	assert.Equal(t, "c", res.Rows[2]["id"])
}

func TestSelectRangeAndCount(t *testing.T) {
	b := seeded(t)
	req := backend.SelectRequest{
		Table:   "jobs",
		Columns: []string{"id", "title"},
		Filters: []backend.Filter{{AnyOf: []backend.Condition{{Column: "title", Op: backend.OpILike, Value: "%ENGINEER%"}}}},
		Order:   []backend.Order{{Column: "id"}},
		Offset:  1,
		Limit:   5,
		Ranged:  true,
		Count:   true,
	}
	res, err := b.Select(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "c", res.Rows[0]["id"])
	require.NotNil(t, res.Count)
	assert.EqualValues(t, 2, *res.Count)
	assert.Nil(t, res.Columns)

	b.SetCapabilities(backend.Capabilities{ExposesColumns: true})
	res, err = b.Select(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Count)
	assert.Equal(t, []string{"id", "title", "salary", "posted_at"}, res.Columns)
}

func TestSelectFilters(t *testing.T) {
	b := seeded(t)
	res, err := b.Select(context.Background(), backend.SelectRequest{
		Table: "jobs",
		Filters: []backend.Filter{
			{AnyOf: []backend.Condition{{Column: "id", Op: backend.OpIn, Values: []any{"a", "b"}}}},
			{AnyOf: []backend.Condition{{Column: "salary", Op: backend.OpEq, Value: 90000}}},
		},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "a", res.Rows[0]["id"])
	assert.Len(t, res.Rows[0], 4)
}

func TestSelectErrors(t *testing.T) {
	b := seeded(t)
	ctx := context.Background()

	_, err := b.Select(ctx, backend.SelectRequest{Table: "nope", Limit: 1})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PGRST205", be.Code)

	_, err = b.Select(ctx, backend.SelectRequest{Table: "jobs", Columns: []string{"job_title"}, Limit: 1})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "42703", be.Code)
	assert.Equal(t, "column jobs.job_title does not exist", be.Message)

	_, err = b.Select(ctx, backend.SelectRequest{Table: "jobs", Order: []backend.Order{{Column: "created_at"}}, Limit: 1})
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Message, "created_at")

	b.DenyReads("jobs", true)
	_, err = b.Select(ctx, backend.SelectRequest{Table: "jobs", Limit: 1})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "42501", be.Code)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.Select(cctx, backend.SelectRequest{Table: "jobs", Limit: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, b.Calls())
}

func TestWriteAndUpsert(t *testing.T) {
	b := seeded(t)
	ctx := context.Background()

	row, err := b.Write(ctx, backend.WriteRequest{Table: "jobs", Payload: map[string]any{"id": "d", "title": "SRE"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "d", "title": "SRE", "salary": nil, "posted_at": nil}, row)

	row, err = b.Write(ctx, backend.WriteRequest{Table: "jobs", Payload: map[string]any{"id": "a", "salary": 95000}, OnConflict: "id"})
	require.NoError(t, err)
	assert.Equal(t, "Data Engineer", row["title"])
	assert.Equal(t, 95000, row["salary"])
	assert.Len(t, b.Rows("jobs"), 4)

	_, err = b.Write(ctx, backend.WriteRequest{Table: "jobs", Payload: map[string]any{"id": "e", "legacy": 1, "zzz": 2}})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PGRST204", be.Code)
	assert.Equal(t, "Could not find the 'legacy' column of 'jobs' in the schema cache", be.Message)

	b.DenyWrites("jobs", true)
	_, err = b.Write(ctx, backend.WriteRequest{Table: "jobs", Payload: map[string]any{"id": "f"}})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "42501", be.Code)
	assert.Contains(t, be.Message, "row-level security")
}

func TestRowsAreCopies(t *testing.T) {
	b := seeded(t)
	rows := b.Rows("jobs")
	rows[0]["title"] = "changed"
	assert.Equal(t, "Data Engineer", b.Rows("jobs")[0]["title"])
	assert.Nil(t, b.Rows("missing"))

	require.Error(t, b.Seed("jobs", map[string]any{"nope": 1}))
	b.DropTable("jobs")
	assert.Nil(t, b.Rows("jobs"))
}

func TestSelectClampsOutOfRangeWindow(t *testing.T) {
	b := seeded(t)
	ctx := context.Background()
	for _, req := range []backend.SelectRequest{
		{Table: "jobs", Offset: -40, Limit: 2, Ranged: true},
		{Table: "jobs", Offset: 1 << 40, Limit: 2, Ranged: true},
		{Table: "jobs", Offset: 1, Limit: -1, Ranged: true},
		{Table: "jobs", Limit: int(^uint(0) >> 1)},
	} {
		res, err := b.Select(ctx, req)
		require.NoError(t, err, "%+v", req)
		assert.LessOrEqual(t, len(res.Rows), 3)
	}
	res, err := b.Select(ctx, backend.SelectRequest{Table: "jobs", Offset: -40, Limit: 2, Ranged: true})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}
