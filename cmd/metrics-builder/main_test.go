package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunMerge(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Date,Version,Path,Views\n2024-01-01 00:00:00,latest,/index.html,5\n")
	b := writeCSV(t, dir, "b.csv", "Path,Views,Date,Version\n/index.html,9,2024-01-01 00:00:00,latest\n/api.html,1,2024-01-01 00:00:00,latest\n")

	var out bytes.Buffer
	code := runMerge(context.Background(), []string{a, b}, strings.NewReader(""), &out)
	require.Equal(t, 0, code)
	assert.Equal(t,
		"Date,Version,Path,Views\n2024-01-01 00:00:00,latest,/index.html,9\n2024-01-01 00:00:00,latest,/api.html,1\n",
		out.String())

	dst := filepath.Join(dir, "merged.csv")
	code = runMerge(context.Background(), []string{"--output", dst, a}, strings.NewReader(""), &out)
	require.Equal(t, 0, code)
	assert.FileExists(t, dst)
}

func TestRunMergeStdinAndSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	search := writeCSV(t, dir, "s.csv", "Created Date,Query,Total Results\n2024-01-01 10:00:00,oauth,4\n")
	stdin := strings.NewReader("Date,Version,Path,Views\n2024-01-01 00:00:00,latest,/index.html,5\n")

	var out bytes.Buffer
	code := runMerge(context.Background(), []string{"-schema", "traffic", "-", search}, stdin, &out)
	assert.Equal(t, 1, code)
	assert.Empty(t, out.String())
}

func TestRunRank(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Date,Version,Path,Views\n"+
		"2024-01-01 00:00:00,latest,/index.html,5\n"+
		"2024-01-01 00:00:00,stable,/api.html,8\n"+
		"2024-01-02 00:00:00,latest,/index.html,4\n")

	var out bytes.Buffer
	require.Equal(t, 0, runRank(context.Background(), []string{a}, nil, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"/index.html", "9"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"/api.html", "8"}, strings.Fields(lines[1]))

	out.Reset()
	require.Equal(t, 0, runRank(context.Background(), []string{"-by", "versions", "-top", "1", a}, nil, &out))
	assert.Equal(t, []string{"latest", "9"}, strings.Fields(out.String()))

	out.Reset()
	assert.Equal(t, 1, runRank(context.Background(), []string{"-by", "queries", a}, nil, &out))
	assert.Equal(t, 2, runRank(context.Background(), []string{"-by", "authors", a}, nil, &out))
}

func TestRunStats(t *testing.T) {
	dir := t.TempDir()
	s := writeCSV(t, dir, "s.csv", "Created Date,Query,Total Results\n"+
		"2024-01-01 10:00:00,oauth,4\n"+
		"2024-01-01 10:00:00,oauth,4\n"+
		"2024-01-01 11:00:00,spawner,2\n")

	var out bytes.Buffer
	require.Equal(t, 0, runStats(context.Background(), []string{s}, nil, &out))
	text := out.String()
	assert.Contains(t, text, "search")
	assert.Regexp(t, `input rows\s+3`, text)
	assert.Regexp(t, `merged rows\s+2`, text)
	assert.Regexp(t, `distinct queries\s+2`, text)
}

func TestRunStatsRequiresFiles(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, runStats(context.Background(), nil, nil, &out))
}
