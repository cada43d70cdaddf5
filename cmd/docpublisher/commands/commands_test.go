package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
)

// fakeRunner records steps and renders a small site on build.
type fakeRunner struct {
	mu      sync.Mutex
	siteDir string
	steps   []string
}

func (f *fakeRunner) run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.steps = append(f.steps, cmd.Step)
	f.mu.Unlock()
	if cmd.Step == "build" {
		for name, body := range map[string]string{
			"index.html":                 "<html>home</html>",
			"tutorials/intro/index.html": "<html>intro</html>",
		} {
			p := filepath.Join(f.siteDir, name)
			if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
				return runner.Result{ExitCode: 1}, err
			}
			if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
				return runner.Result{ExitCode: 1}, err
			}
		}
	}
	return runner.Result{}, nil
}

type fixture struct {
	root       string
	configPath string
	publicDir  string
	runner     *fakeRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	public := filepath.Join(t.TempDir(), "public")
	helpers.WriteTree(t, root, map[string]string{
		"docs/docs/index.md":              "# Home\n",
		"docs/docs/tutorials/intro.ipynb": `{"cells": []}`,
	})
	cfg := strings.Join([]string{
		"repository:",
		"  path: " + root,
		"install:",
		"  sets: []",
		"steps:",
		"  test:",
		"    run: [make, test]",
		"  lint:",
		"    run: [make, lint]",
		"publish:",
		"  target: directory",
		"  directory:",
		"    path: " + public,
		"  lock:",
		"    backend: memory",
		"",
	}, "\n")
	path := filepath.Join(root, "docpublisher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &fixture{
		root:       root,
		configPath: path,
		publicDir:  public,
		runner:     &fakeRunner{siteDir: filepath.Join(root, "docs", "site")},
	}
}

func (f *fixture) exec(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	g := &Global{
		Out:    &out,
		Getenv: func(k string) string { return env[k] },
		Runner: runner.Func(f.runner.run),
	}
	err := runCLI(t, g, append([]string{"--config", f.configPath}, args...)...)
	return out.String(), err
}

func runCLI(t *testing.T, g *Global, args ...string) error {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("docpublisher"), kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	err = kctx.Run(g, cli)
	if buf, ok := g.Out.(*bytes.Buffer); ok {
		t.Log(buf.String())
	}
	return err
}

func exitCode(err error) int {
	return ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err)
}

func TestInitWritesExampleOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docpublisher.yaml")
	var out bytes.Buffer
	g := &Global{Out: &out}

	require.NoError(t, runCLI(t, g, "--config", path, "init"))
	helpers.NewFileAssertions(t, filepath.Dir(path)).Contains("docpublisher.yaml", "default_branch: main")
	require.Contains(t, out.String(), path)

	err := runCLI(t, g, "--config", path, "init")
	require.Error(t, err)
	require.Equal(t, ferrors.ExitConfig, exitCode(err))

	require.NoError(t, runCLI(t, g, "--config", path, "init", "--force"))
}

func TestRunDryRunPrintsPlan(t *testing.T) {
	f := newFixture(t)
	out, err := f.exec(t, nil, "run", "--dry-run", "--event", "pull_request", "--branch", "feature", "--base", "main")
	require.NoError(t, err)
	require.Contains(t, out, "not a release run (pull_request on feature)")
	require.Contains(t, out, "DOWNLOAD_STATS=false")
	require.Empty(t, f.runner.steps, "dry run executes nothing")
}

func TestRunWithoutTriggerIsUsageError(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec(t, nil, "run")
	require.Error(t, err)
	require.Equal(t, ferrors.ExitUsage, exitCode(err))
}

func TestRunReadsTriggerFromCIEnvironment(t *testing.T) {
	f := newFixture(t)
	env := map[string]string{
		"GITHUB_EVENT_NAME": "pull_request",
		"GITHUB_HEAD_REF":   "feature",
		"GITHUB_BASE_REF":   "main",
	}
	out, err := f.exec(t, env, "run", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "pull_request on feature")
}

func TestRunPublishesReleaseAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	out, err := f.exec(t, nil, "run", "--event", "push", "--branch", "main")
	require.NoError(t, err)
	require.Contains(t, out, "succeeded")
	require.Equal(t, []string{"test", "lint", "build"}, f.runner.steps)

	helpers.NewFileAssertions(t, f.publicDir).
		Contains("index.html", "home").
		Contains("tutorials/intro/index.html", "intro")

	out, err = f.exec(t, nil, "history", "--format", "json")
	require.NoError(t, err)
	var runs []eventstore.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "push", runs[0].Event)
	require.True(t, runs[0].Release)
	require.Equal(t, "succeeded", runs[0].Status)

	out, err = f.exec(t, nil, "history", "--run", runs[0].RunID)
	require.NoError(t, err)
	require.Contains(t, out, "publish")
}

func TestRunPullRequestNeverPublishes(t *testing.T) {
	f := newFixture(t)
	out, err := f.exec(t, nil, "run", "--event", "pull_request", "--branch", "feature", "--base", "main")
	require.NoError(t, err)
	require.Contains(t, out, "succeeded")
	require.NoDirExists(t, f.publicDir)
}

func TestHistoryUnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec(t, nil, "history", "--run", "nope")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestLintCommandExitsWithUsageCodeOnErrors(t *testing.T) {
	dir := t.TempDir()
	helpers.WriteTree(t, dir, map[string]string{"broken.ipynb": "{not json"})

	var out bytes.Buffer
	err := runCLI(t, &Global{Out: &out}, "lint", dir)
	require.Error(t, err)
	require.Equal(t, ferrors.ExitUsage, exitCode(err))
	require.Contains(t, out.String(), "broken.ipynb")
}

func TestLinkcheckFullModeWithoutPages(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "docs/docs/tutorials/intro.ipynb")))
	out, err := f.exec(t, nil, "linkcheck", "--format", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"no_match": true`)
}

func TestChangesRequiresRepository(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec(t, nil, "changes", "--event", "push", "--branch", "main")
	require.Error(t, err)
	require.Equal(t, ferrors.ExitExternal, exitCode(err))
}

func TestChangesListsDocsChangesOfLastPush(t *testing.T) {
	_, w, dir := helpers.SetupTestGitRepo(t)
	helpers.Commit(t, w, dir, "initial", map[string]string{
		"README.md":                       "readme\n",
		"docs/docs/tutorials/intro.ipynb": `{"cells": []}`,
	})
	helpers.Commit(t, w, dir, "update intro", map[string]string{
		"README.md":                       "readme v2\n",
		"docs/docs/tutorials/intro.ipynb": `{"cells": [{"cell_type": "markdown"}]}`,
	})
	path := filepath.Join(t.TempDir(), "docpublisher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repository:\n  path: "+dir+"\n"), 0o600))

	var out bytes.Buffer
	err := runCLI(t, &Global{Out: &out}, "--config", path, "changes", "--event", "push", "--branch", "main", "--format", "json")
	require.NoError(t, err)

	var cs struct {
		Entries []struct {
			Path   string `json:"path"`
			Action string `json:"action"`
		} `json:"entries"`
		Degraded bool `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &cs))
	require.False(t, cs.Degraded)
	require.Len(t, cs.Entries, 1, "changes outside the docs directory are ignored")
	require.Equal(t, "docs/docs/tutorials/intro.ipynb", cs.Entries[0].Path)
	require.Equal(t, "modified", cs.Entries[0].Action)
}
