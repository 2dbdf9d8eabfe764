package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/pipeline"
	"github.com/dgallion1/versegest/internal/retrieval"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func corpusEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VERSEGEST_STORAGE_DB_PATH", filepath.Join(dir, "corpus.db"))
	t.Setenv("VERSEGEST_STORAGE_ARTIFACT_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("VERSEGEST_LOG_LEVEL", "error")
	return dir
}

func TestRefsCommand(t *testing.T) {
	corpusEnv(t)
	out, err := execute(t, "refs", "-o", "json", "--hint", "Rom 12:18", "Read John 3:16 and John 3:17 tonight.")
	require.NoError(t, err)

	var rep refsReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "John.3.16-17", string(rep.Primary))
	assert.Len(t, rep.Detected, 2)
	assert.Equal(t, "John.3.16-17", string(rep.Combined))
	assert.Equal(t, 2, rep.Verses)
	assert.Equal(t, []string{"Rom 12:18"}, rep.Unmatched)
}

func TestIngestThenSearch(t *testing.T) {
	dir := corpusEnv(t)
	doc := filepath.Join(dir, "sermon.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Love\n\nJohn 3:16 says God so loved the world.\n"), 0o644))

	out, err := execute(t, "ingest", "-o", "json", "--collection", "sermons", doc)
	require.NoError(t, err)
	var snaps []pipeline.JobSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, pipeline.StatusCompleted, snaps[0].Status)

	out, err = execute(t, "ingest", "-o", "json", doc)
	require.NoError(t, err, "a duplicate is not a failure")
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	assert.Equal(t, pipeline.StatusDupSkipped, snaps[0].Status)

	out, err = execute(t, "search", "-o", "json", "--ref", "John 3:16", "loved", "world")
	require.NoError(t, err)
	var results []retrieval.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "John.3.16", results[0].Primary)
	assert.Contains(t, results[0].Highlighted, "<mark>loved</mark>")

	out, err = execute(t, "search", "-o", "json", "--ref", "Gen 1:1", "loved")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestSeedsLoadAndQuery(t *testing.T) {
	dir := corpusEnv(t)
	file := filepath.Join(dir, "seeds.yaml")
	require.NoError(t, os.WriteFile(file, []byte("pairs:\n  - {kind: contradiction, a: John.3.16, b: Matt.5.44, summary: scope}\n"), 0o644))

	out, err := execute(t, "seeds", "load", file)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 1 pair(s)")

	out, err = execute(t, "seeds", "query", "-o", "text", "--policy", "exact", "John 3:16")
	require.NoError(t, err)
	assert.Contains(t, out, "John.3.16 <> Matt.5.44")

	out, err = execute(t, "seeds", "query", "-o", "text", "--policy", "exact", "Luke.1.1")
	require.NoError(t, err)
	assert.Contains(t, out, "No seeds found.")
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, newLogger("text", "debug"))
	assert.NotNil(t, newLogger("json", "bogus"))
}
