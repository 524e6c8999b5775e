package fallback

import (
	"fmt"
	"math/rand"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/record"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

func TestBundledCorpus(t *testing.T) {
	c := Bundled()
	jobs, err := c.Records(schema.JobsTable)
	require.NoError(t, err)
	require.Len(t, jobs, 8)
	first := jobs[0]
	assert.Equal(t, "job-001", first["id"])
	assert.Equal(t, "Alpenlink AG", first["company_name"])
	assert.Equal(t, 125000.0, first["salary_min_value"])
	assert.Equal(t, true, first["is_featured"])
	assert.Equal(t, []any{"Go", "PostgreSQL", "Kubernetes"}, first["skills"])

	companies, err := c.Records(schema.CompaniesTable)
	require.NoError(t, err)
	assert.Len(t, companies, 5)
}

func TestCorpusReturnsCopies(t *testing.T) {
	c := Bundled()
	a, err := c.Records(schema.JobsTable)
	require.NoError(t, err)
	a[0]["title"] = "changed"
	a[0]["skills"].([]any)[0] = "changed"

	b, err := c.Records(schema.JobsTable)
	require.NoError(t, err)
	assert.Equal(t, "Senior Backend Engineer (Go)", b[0]["title"])
	assert.Equal(t, "Go", b[0]["skills"].([]any)[0])
}

func TestCorpusMissingAndBroken(t *testing.T) {
	fsys := fstest.MapFS{
		"d/jobs.json":  {Data: []byte(`[{"id":"x","jobTitle":"Welder"}]`)},
		"d/bad.json":   {Data: []byte(`{`)},
		"d/notes.json": {Data: []byte(`[{"someKey":1}]`)},
	}
	c := NewCorpus(fsys, "d")

	rows, err := c.Records("applications")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.Records("bad")
	require.Error(t, err)

	rows, err = c.Records(schema.JobsTable)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// camelCase keys resolve through the field's fallbacks.
	assert.Equal(t, "Welder", rows[0]["title"])

	rows, err = c.Records("notes")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rows[0]["some_key"])
}

func TestMergeLiveFirst(t *testing.T) {
	live := []record.Record{{"id": "a", "v": "live"}, {"id": "b", "v": "live"}}
	static := []record.Record{{"id": "b", "v": "static"}, {"id": "c", "v": "static"}}
	got := Merge(live, static, "id")
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0]["id"])
	assert.Equal(t, "live", got[1]["v"])
	assert.Equal(t, "c", got[2]["id"])
}

func TestMergeKeepsAnonymousRows(t *testing.T) {
	got := Merge([]record.Record{{"title": "x"}}, []record.Record{{"title": "y"}}, "id")
	assert.Len(t, got, 2)
}

// Merge output never repeats an identity and always contains every live
// identity in live order.
func TestMergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	gen := func(n int) []record.Record {
		out := make([]record.Record, n)
		for i := range out {
			out[i] = record.Record{"id": fmt.Sprintf("r%d", rng.Intn(15))}
		}
		return out
	}
	for trial := 0; trial < 300; trial++ {
		live, static := gen(rng.Intn(10)), gen(rng.Intn(10))
		got := Merge(live, static, "id")

		seen := make(map[string]bool)
		for _, r := range got {
			id := record.ID(r, "id")
			require.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
		for _, r := range live {
			require.True(t, seen[record.ID(r, "id")])
		}
		for _, r := range static {
			require.True(t, seen[record.ID(r, "id")])
		}
		var liveOrder []string
		dedup := make(map[string]bool)
		for _, r := range live {
			if id := record.ID(r, "id"); !dedup[id] {
				dedup[id] = true
				liveOrder = append(liveOrder, id)
			}
		}
		for i, id := range liveOrder {
			require.Equal(t, id, record.ID(got[i], "id"))
		}
	}
}

func TestFilter(t *testing.T) {
	rows := []record.Record{{"n": 1.0}, {"n": 2.0}, {"n": 3.0}}
	got := Filter(rows, func(r record.Record) bool { return r["n"].(float64) > 1 })
	assert.Len(t, got, 2)
}

func TestNormalizeStaticRow(t *testing.T) {
	r := Normalize(map[string]any{"id": "co-9", "companyName": "Stahl AG", "employeeCount": "11-50"}, schema.Companies())
	assert.Equal(t, "co-9", r["id"])
	assert.Equal(t, "Stahl AG", r["name"])
	assert.Equal(t, "11-50", r["size"])
}
