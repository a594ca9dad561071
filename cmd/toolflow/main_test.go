package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancout/openai-tool-flow-sub001/internal/config"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/palette"
	"github.com/dancout/openai-tool-flow-sub001/internal/secrets"
)

// isolate points config loading at an empty home directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	return home
}

func stubCollaborator(t *testing.T, fn generation.Func) {
	t.Helper()
	orig := newCollaborator
	newCollaborator = func(*config.Config, *logging.Logger, secrets.Scrubber) (generation.Collaborator, error) {
		return fn, nil
	}
	t.Cleanup(func() { newCollaborator = orig })
}

func paletteModel(refine map[string]any) generation.Func {
	return func(_ context.Context, req generation.Request) (*generation.Response, error) {
		usage := history.Usage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40}
		switch req.ToolID {
		case palette.ToolExtractSeedColors:
			return &generation.Response{
				Output: map[string]any{"colors": []any{"#102030", "#FFFFFF", "#000000"}},
				Usage:  usage,
			}, nil
		case palette.ToolRefinePalette:
			return &generation.Response{Output: refine, Usage: usage}, nil
		}
		return nil, fmt.Errorf("unexpected tool %s", req.ToolID)
	}
}

var goodPalette = map[string]any{
	"name":       "Ink",
	"background": "#ffffff",
	"roles": map[string]any{
		"primary":   "#000000",
		"secondary": "#102030",
		"accent":    "#1a1a6e",
		"text":      "#222222",
	},
}

func execute(args ...string) (string, string, error) {
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRun_Palette(t *testing.T) {
	isolate(t)
	stubCollaborator(t, paletteModel(goodPalette))
	metricsFile := filepath.Join(t.TempDir(), "run.prom")

	stdout, _, err := execute("run", "palette", "--input", "ink on paper", "--usage", "final", "--metrics-file", metricsFile)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, true, report["passed"])
	assert.NotEmpty(t, report["run_id"])

	usage := report["usage"].(map[string]any)
	assert.Equal(t, "final", usage["scope"])

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "toolflow_step_attempts_total")
	assert.Contains(t, string(metrics), `tool="refine_palette"`)
}

func TestRun_FinalOnlyAndProgress(t *testing.T) {
	isolate(t)
	stubCollaborator(t, paletteModel(goodPalette))

	stdout, stderr, err := execute("run", "palette", "--input", `{"brief":"ink on paper"}`, "--final-only", "--progress")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, true, report["final_only"])
	assert.Contains(t, stderr, "[1 extract_seed_colors round 0] pending")
	assert.Contains(t, stderr, "[3 contrast_report round 0] accepted")
}

func TestRun_InputFromFile(t *testing.T) {
	isolate(t)
	stubCollaborator(t, paletteModel(goodPalette))
	path := filepath.Join(t.TempDir(), "brief.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"brief": "forest floor"}`), 0o600))

	_, _, err := execute("run", "palette", "--input", "@"+path)
	assert.NoError(t, err)
}

func TestRun_NotPassed(t *testing.T) {
	isolate(t)
	incomplete := map[string]any{
		"name":       "Half",
		"background": "#ffffff",
		"roles":      map[string]any{"primary": "#000000"},
	}
	stubCollaborator(t, paletteModel(incomplete))

	stdout, _, err := execute("run", "palette", "--input", "ink")
	require.ErrorIs(t, err, errNotPassed)
	assert.Contains(t, stdout, `"passed": false`)
}

func TestRun_Errors(t *testing.T) {
	isolate(t)
	stubCollaborator(t, paletteModel(goodPalette))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown pipeline", []string{"run", "poster", "--input", "x"}, "unknown pipeline"},
		{"missing input", []string{"run", "palette"}, "required flag"},
		{"blank brief", []string{"run", "palette", "--input", "   "}, "brief is required"},
		{"bad json", []string{"run", "palette", "--input", "{nope"}, "parsing input JSON"},
		{"bad usage", []string{"run", "palette", "--input", "ink", "--usage", "some"}, "usage scope"},
		{"missing file", []string{"run", "palette", "--input", "@/does/not/exist.json"}, "reading input file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	isolate(t)

	stdout, _, err := execute("validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config: ok")
	assert.Contains(t, stdout, "warning: provider.api_key is not set")
	assert.Contains(t, stdout, "pipeline palette: ok (3 steps)")
}

func TestValidate_BadConfig(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "toolflow")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("flow:\n  usage_scope: sometimes\n"), 0o600))

	_, _, err := execute("validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage_scope")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "toolflow dev"))
	assert.Contains(t, stdout, "commit: unknown")
}
