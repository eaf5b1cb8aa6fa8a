package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/integrity"
)

const orphanGraph = `{
  "id": "samuel_main",
  "character_id": "samuel",
  "start_node": "intro",
  "nodes": [
    {"id": "intro", "content": "Hello.", "choices": [{"text": "Bye", "target": "farewell"}]},
    {"id": "farewell", "content": "Bye."},
    {"id": "attic", "content": "Dust."}
  ]
}`

func fixedNow() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

func writeContent(t *testing.T, dir, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
}

func runValidate(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr, fixedNow)
	return code, stdout.String(), stderr.String()
}

func TestRun_BaselineLifecycle(t *testing.T) {
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.Mkdir(content, 0o755))
	writeContent(t, content, "samuel.json", orphanGraph)
	baseline := filepath.Join(dir, "baseline.json")

	code, _, stderr := runValidate("--content", content, "--baseline", baseline)
	assert.Equal(t, exitNoBaseline, code)
	assert.Contains(t, stderr, "--write-baseline")

	code, stdout, _ := runValidate("--content", content, "--baseline", baseline, "--write-baseline")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "2 issues")

	code, stdout, _ = runValidate("--content", content, "--baseline", baseline)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "No new issues")

	// A new dead node is a regression.
	writeContent(t, content, "samuel.json", `{
  "id": "samuel_main",
  "character_id": "samuel",
  "start_node": "intro",
  "nodes": [
    {"id": "intro", "content": "Hello.", "choices": [{"text": "Bye", "target": "farewell"}]},
    {"id": "farewell", "content": "Bye."},
    {"id": "attic", "content": "Dust."},
    {"id": "cellar", "content": "Damp."}
  ]
}`)
	code, _, stderr = runValidate("--content", content, "--baseline", baseline)
	assert.Equal(t, exitRegression, code)
	assert.Contains(t, stderr, "unreferenced:samuel_main:cellar")

	// Declaring it an entry point clears the regression.
	code, _, _ = runValidate("--content", content, "--baseline", baseline, "--entry", "cellar")
	assert.Equal(t, exitOK, code)
}

func TestRun_WritesReport(t *testing.T) {
	dir := t.TempDir()
	writeContent(t, dir, "samuel.json", orphanGraph)
	output := filepath.Join(dir, "report.json")
	baseline := filepath.Join(dir, "baseline.json")

	code, _, _ := runValidate("--content", dir, "--baseline", baseline, "--output", output, "--write-baseline")
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var report integrity.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, []string{"attic"}, report.Unreferenced["samuel_main"])
}

func TestRun_WordingWarnings(t *testing.T) {
	dir := t.TempDir()
	writeContent(t, dir, "samuel.json", `{
  "id": "samuel_main",
  "character_id": "samuel",
  "start_node": "intro",
  "nodes": [
    {"id": "intro", "content": "What the hell happened here?", "choices": [{"id": "leave", "text": "Leave", "target": "farewell"}]},
    {"id": "farewell", "content": "Bye."}
  ]
}`)
	baseline := filepath.Join(dir, "baseline.json")

	code, stdout, _ := runValidate("--content", dir, "--baseline", baseline, "--write-baseline")
	require.Equal(t, exitOK, code, "wording never fails validation")
	assert.Contains(t, stdout, `Warning: samuel_main/intro content[0]: "What the hell happened here?" reads as profanity, consider "What the heck happened here?"`)
	assert.NotContains(t, stdout, "choice leave")
}

func TestRun_LoadFailure(t *testing.T) {
	dir := t.TempDir()
	writeContent(t, dir, "broken.json", `{"id": "x", "mood": "sad"}`)

	code, _, stderr := runValidate("--content", dir)
	assert.Equal(t, exitRegression, code)
	assert.Contains(t, stderr, "Failed to load content")
}

func TestRun_SampleContent(t *testing.T) {
	baseline := filepath.Join(t.TempDir(), "baseline.json")
	code, stdout, _ := runValidate("--content", "../../data/content", "--baseline", baseline, "--write-baseline")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, stdout, "Warning:")

	b, err := integrity.LoadBaseline(baseline)
	require.NoError(t, err)
	assert.Empty(t, b.Issues)
}
