package cliutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/record"
)

func TestParseSets(t *testing.T) {
	got, err := ParseSets([]string{"title=Data Engineer", "logoUrl=https://x.ch/l.png", "open_positions=3", "is_hiring=true", "tags=[\"ml\",\"go\"]", "note="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":          "Data Engineer",
		"logo_url":       "https://x.ch/l.png",
		"open_positions": float64(3),
		"is_hiring":      true,
		"tags":           []any{"ml", "go"},
		"note":           "",
	}, got)

	_, err = ParseSets([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseSets([]string{"=x"})
	assert.Error(t, err)
}

func TestParseCategories(t *testing.T) {
	got, err := ParseCategories([]string{"workArrangement=remote, hybrid", "employment_type=full_time", "work_arrangement=onsite", "size="})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"work_arrangement": {"remote", "hybrid", "onsite"},
		"employment_type":  {"full_time"},
	}, got)

	got, err = ParseCategories(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseCategories([]string{"remote"})
	assert.Error(t, err)
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseOutputFormat("json"))
	assert.Equal(t, FormatPretty, ParseOutputFormat("yaml"))
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	PrintRecords(&buf, []record.Record{
		{"id": "job-1", "title": strings.Repeat("ä", 45), "skills": []any{"go", "sql"}},
		{"id": "job-2", "salary": 120000.0},
	}, []string{"id", "title", "skills", "salary"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], strings.Repeat("ä", 37)+"...")
	assert.NotContains(t, lines[1], strings.Repeat("ä", 38))
	assert.Contains(t, lines[1], "go,sql")
	assert.Contains(t, lines[2], "120000")
	assert.Contains(t, lines[2], "-")
}
