package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-call-graph/internal/config"
	"github.com/l3aro/go-call-graph/pkg/export"
)

const screen = `package app;

public class Screen {
    private final Repository repo = new Repository();

    @UiThread
    public void onClick() {
        refresh();
    }

    void refresh() {
        repo.load();
    }
}
`

const repository = `package app;

public class Repository {
    @WorkerThread
    public void load() {}
}
`

func project(t *testing.T, withViolation bool) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	files := map[string]string{
		"app/Repository.java": repository,
		"app/Screen.java":     screen,
	}
	if !withViolation {
		files["app/Screen.java"] = strings.Replace(screen, "@UiThread", "", 1)
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs(args)
	defer RootCmd.SetOut(nil)
	err := Execute()
	return out.String(), err
}

func TestGraphCommandJSON(t *testing.T) {
	root := project(t, true)

	out, err := execute(t, "graph", root, "--format", "json", "--likely=false", "--out", "")
	require.NoError(t, err)

	var doc export.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotEmpty(t, doc.RunID)

	keys := make(map[string]bool)
	for _, n := range doc.Nodes {
		keys[n.Key] = true
	}
	assert.True(t, keys["app.Screen.onClick/0"])
	assert.True(t, keys["app.Repository.load/0"])
	assert.NotEmpty(t, doc.Edges)
}

func TestGraphCommandWritesFile(t *testing.T) {
	root := project(t, true)
	outPath := filepath.Join(t.TempDir(), "graph.dot")

	_, err := execute(t, "graph", root, "--format", "dot", "--out", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "digraph callgraph {"))
}

func TestGraphCommandRejectsUnknownFormat(t *testing.T) {
	root := project(t, true)

	_, err := execute(t, "graph", root, "--format", "svg", "--out", "")
	assert.ErrorContains(t, err, "unknown format")
}

func TestCheckCommandReportsViolations(t *testing.T) {
	root := project(t, true)

	out, err := execute(t, "check", root, "--json")
	require.ErrorIs(t, err, ErrViolations)

	var result CheckOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Files)
	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, "thread", v.Rule)
	require.Len(t, v.Chain, 3)
	assert.Equal(t, "app.Screen.onClick", v.Chain[0].Name)
	assert.Equal(t, "app/Screen.java", v.Chain[0].File)
	assert.Equal(t, "app.Repository.load", v.Chain[2].Name)
}

func TestCheckCommandText(t *testing.T) {
	root := project(t, true)

	out, err := execute(t, "check", root, "--json=false")
	require.ErrorIs(t, err, ErrViolations)
	assert.Contains(t, out, "1 context violation(s) in 2 files")
	assert.Contains(t, out, "[thread]")
	assert.Contains(t, out, "app.Screen.refresh")
	assert.Contains(t, out, "app/Screen.java:")
}

func TestCheckCommandClean(t *testing.T) {
	root := project(t, false)

	out, err := execute(t, "check", root, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "no context violations in 2 files")
}

func TestCheckCommandUsesProjectRules(t *testing.T) {
	root := project(t, true)
	cfg := config.DefaultConfig()
	cfg.Contexts = []config.ContextRule{{Name: "io", A: []string{"MainOnly"}, B: []string{"IoOnly"}}}
	require.NoError(t, cfg.Save(config.ProjectPath(root)))

	out, err := execute(t, "check", root, "--json=false")
	require.NoError(t, err, "the default thread rule is replaced by the configured one")
	assert.Contains(t, out, "no context violations")
}

func TestMetricsFileIsWritten(t *testing.T) {
	root := project(t, true)
	metricsPath := filepath.Join(t.TempDir(), "gcg.prom")

	_, err := execute(t, "check", root, "--json=false", "--metrics-file", metricsPath)
	require.ErrorIs(t, err, ErrViolations)
	flags.metricsFile = ""

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gcg_checker_violations_total{rule="thread"} 1`)
}

func TestProjectRootErrors(t *testing.T) {
	_, err := projectRoot([]string{filepath.Join(t.TempDir(), "missing")})
	assert.ErrorContains(t, err, "stat path")

	file := filepath.Join(t.TempDir(), "A.java")
	require.NoError(t, os.WriteFile(file, []byte("class A {}"), 0644))
	_, err = projectRoot([]string{file})
	assert.ErrorContains(t, err, "not a directory")
}

func TestInitAnswers(t *testing.T) {
	cfg := config.DefaultConfig()
	answers := defaultAnswers(cfg)
	assert.Equal(t, "thread", answers.RuleName)
	assert.Equal(t, "UiThread, MainThread", answers.ContextA)

	answers.RuleName = "db"
	answers.ContextA = "@MainThread, , UiThread"
	answers.ContextB = "Blocking"
	answers.Output = "dot"
	answers.IncludeTests = true
	require.NoError(t, answers.apply(cfg))

	assert.Equal(t, []config.ContextRule{{Name: "db", A: []string{"MainThread", "UiThread"}, B: []string{"Blocking"}}}, cfg.Contexts)
	assert.Equal(t, "dot", cfg.Output)
	assert.True(t, cfg.IncludeTests)

	answers.ContextB = "MainThread"
	assert.ErrorIs(t, answers.apply(cfg), config.ErrInvalidConfig)

	assert.Error(t, requireList(" , "))
	assert.NoError(t, requireList("UiThread"))
}
