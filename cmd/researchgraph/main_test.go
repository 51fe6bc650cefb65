package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stategraph/internal/app"
	"github.com/dshills/stategraph/research/researchtest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func withScriptedModel(t *testing.T, decision string) {
	t.Helper()
	appOptions = []app.Option{
		app.WithChatModel(researchtest.Model(decision), "gpt-4o-mini"),
		app.WithDocuments(researchtest.Archive()),
	}
	t.Cleanup(func() { appOptions = nil })
}

func TestRunCmd(t *testing.T) {
	withScriptedModel(t, researchtest.InScope)

	out, err := execute(t, "run", "--costs", "What", "happened", "to", "the", "budget?")
	require.NoError(t, err)
	assert.Contains(t, out, "final answer from 2 analyses")
	assert.Contains(t, out, "Calls: 6")
}

func TestRunCmd_JSON(t *testing.T) {
	withScriptedModel(t, researchtest.InScope)

	out, err := execute(t, "run", "--json", "--run-id", "run-7", "budget?")
	require.NoError(t, err)

	var result struct {
		RunID    string   `json:"run_id"`
		Answer   string   `json:"answer"`
		Analyses []string `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "run-7", result.RunID)
	assert.Equal(t, "final answer from 2 analyses", result.Answer)
	assert.Len(t, result.Analyses, 2)
}

func TestRunCmd_Errors(t *testing.T) {
	withScriptedModel(t, researchtest.Malformed)

	_, err := execute(t, "run", "budget?")
	assert.ErrorContains(t, err, "malformed decision")

	_, err = execute(t, "run")
	assert.Error(t, err, "a question is required")

	_, err = execute(t, "run", "--provider", "llama", "budget?")
	assert.ErrorContains(t, err, `unknown provider "llama"`)
}

func TestRunCmd_ConfigFile(t *testing.T) {
	withScriptedModel(t, researchtest.OutOfScope)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "researchgraph.yaml")
	content := "provider: google\nstore:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "journal.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	out, err := execute(t, "run", "--config", cfgPath, "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Hi! I answer questions about the news.")
	assert.FileExists(t, filepath.Join(dir, "journal.db"))
}

func TestGraphCmd(t *testing.T) {
	out, err := execute(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "__start__ --> orchestrator")
	assert.Contains(t, out, "orchestrator -.-> researcher")
	assert.Contains(t, out, "researcher -.-> synthesizer")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "researchgraph version dev\n", out)
}
