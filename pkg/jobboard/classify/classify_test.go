package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

func TestMissingColumnPatterns(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"postgres relation", `column "salary_min" of relation "jobs" does not exist`, "salary_min"},
		{"postgres select", `column jobs.salary_min_value does not exist`, "salary_min_value"},
		{"postgres qualified select", `column public.jobs.posted_at does not exist`, "posted_at"},
		{"postgrest schema cache", `Could not find the 'legacy_field' column of 'jobs' in the schema cache`, "legacy_field"},
		{"postgrest qualified", `Could not find the 'logo' column of 'public.jobs' in the schema cache`, "logo"},
		{"plain quoted", `column "tags" does not exist`, "tags"},
		{"sqlite select", `no such column: featured`, "featured"},
		{"sqlite qualified", `no such column: jobs.urgent`, "urgent"},
		{"sqlite insert", `table jobs has no column named legacy_field`, "legacy_field"},
		{"missing column", `missing column 'perks'`, "perks"},
		{"unknown column", "Unknown column `jobs.city` in 'field list'", "city"},
		{"unrelated", `duplicate key value violates unique constraint "jobs_pkey"`, ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MissingColumn(tc.msg, "jobs"))
		})
	}
}

func TestMissingColumnOtherTable(t *testing.T) {
	// Table-specific patterns only match the table asked about.
	assert.Empty(t, MissingColumn(`Could not find the 'logo' column of 'companies' in the schema cache`, "jobs"))
	assert.Equal(t, "logo", MissingColumn(`Could not find the 'logo' column of 'companies' in the schema cache`, "companies"))
}

func TestTablePatternsCompiledOnce(t *testing.T) {
	first := tablePatterns("jobs")
	second := tablePatterns("jobs")
	require.Len(t, first, len(second))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
	assert.NotSame(t, first[0], tablePatterns("companies")[0])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   Kind
		column string
	}{
		{"nil", nil, Unclassified, ""},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), Aborted, ""},
		{"abort code", jberrors.Aborted(nil), Aborted, ""},
		{"missing column", &backend.Error{Code: "42703", Message: `column jobs.salary_min does not exist`}, ColumnMissing, "salary_min"},
		{"missing column in details", &backend.Error{Code: "PGRST204", Message: "bad request", Details: `Could not find the 'x' column of 'jobs' in the schema cache`}, ColumnMissing, "x"},
		{"table code", &backend.Error{Code: "PGRST205", Message: "Could not find the table 'public.jobs' in the schema cache"}, TableMissing, ""},
		{"postgres relation", &backend.Error{Code: "42P01", Message: `relation "jobs" does not exist`}, TableMissing, ""},
		{"sqlite table", errors.New("no such table: jobs"), TableMissing, ""},
		{"rls", &backend.Error{Code: "42501", Message: `new row violates row-level security policy for table "jobs"`}, Authorization, ""},
		{"401", &backend.Error{Message: "unauthorized", Status: http.StatusUnauthorized}, Authorization, ""},
		{"jwt", errors.New("JWT expired"), Authorization, ""},
		{"timeout", context.DeadlineExceeded, Unclassified, ""},
		{"other", errors.New("connection reset by peer"), Unclassified, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err, "jobs")
			assert.Equal(t, tc.kind, got.Kind, got.Kind.String())
			assert.Equal(t, tc.column, got.Column)
		})
	}
}

func TestClassifyPrefersMissingColumnOverTable(t *testing.T) {
	// "does not exist" appears in both shapes; the column reading wins.
	err := errors.New(`column "legacy_field" of relation "jobs" does not exist`)
	got := Classify(err, "jobs")
	assert.Equal(t, ColumnMissing, got.Kind)
	assert.Equal(t, "legacy_field", got.Column)
}

func TestClassifyContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := ClassifyContext(ctx, errors.New("driver: bad connection"), "jobs")
	assert.Equal(t, Aborted, got.Kind)

	got = ClassifyContext(context.Background(), errors.New("driver: bad connection"), "jobs")
	assert.Equal(t, Unclassified, got.Kind)

	got = ClassifyContext(ctx, nil, "jobs")
	assert.Equal(t, Unclassified, got.Kind)
}

func TestInfoCarriesBackendFields(t *testing.T) {
	err := &backend.Error{Code: "42501", Message: "permission denied for table jobs", Details: "d", Hint: "h"}
	info := Info(err)
	require.NotNil(t, info)
	assert.Equal(t, jberrors.ErrBackend, info.Code)
	assert.Equal(t, "42501", info.BackendCode)
	assert.Equal(t, "d", info.Details)
	assert.Equal(t, "h", info.Hint)
	assert.Nil(t, Info(nil))
}
