package linkcheck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

func exitWith(code int, seen *runner.Command) runner.Func {
	return func(_ context.Context, c runner.Command) (runner.Result, error) {
		if seen != nil {
			*seen = c
		}
		if code == 0 {
			return runner.Result{}, nil
		}
		return runner.Result{ExitCode: code}, &runner.ExitError{Step: c.Step, Code: code}
	}
}

func TestCommandAppendsPagesAndRemapsSentinel(t *testing.T) {
	pages := []Page{{HTML: "/site/a/index.html"}, {HTML: "/site/b/index.html"}}

	var seen runner.Command
	c := &Command{Runner: exitWith(5, &seen), Args: []string{"checker", "--strict"}, NoMatchExitCode: 5}
	report, err := c.Check(context.Background(), pages)
	require.NoError(t, err)
	require.True(t, report.NoMatch)
	require.Equal(t, []string{"checker", "--strict", "/site/a/index.html", "/site/b/index.html"}, seen.Args)
	require.Equal(t, []string{"checker", "--strict"}, c.Args, "configured argv is not mutated")

	c.Runner = exitWith(0, nil)
	report, err = c.Check(context.Background(), pages)
	require.NoError(t, err)
	require.False(t, report.NoMatch)

	c.Runner = exitWith(1, nil)
	_, err = c.Check(context.Background(), pages)
	require.ErrorIs(t, err, ErrChecker)
	code, ok := runner.ExitCode(err)
	require.True(t, ok)
	require.Equal(t, 1, code)
}

type stubChecker struct {
	calls int
	pages []Page
	err   error
}

func (s *stubChecker) Check(_ context.Context, pages []Page) (*Report, error) {
	s.calls++
	s.pages = pages
	return &Report{Pages: len(pages)}, s.err
}

func TestStepIncrementalSkipsWithoutNotebookChanges(t *testing.T) {
	checker := &stubChecker{}
	step := &Step{Selector: newSelector(t), Checker: checker}

	for _, changed := range [][]string{nil, {"concepts/overview.md"}, {"tutorials/storm/storm.ipynb"}} {
		out, err := step.Run(context.Background(), ModeIncremental, changed)
		require.NoError(t, err)
		require.True(t, out.Skipped)
		require.Equal(t, NoNotebookChanges, out.Reason)
	}
	require.Zero(t, checker.calls)
}

func TestStepIncrementalChecksChangedPages(t *testing.T) {
	checker := &stubChecker{}
	step := &Step{Selector: newSelector(t), Checker: checker}

	out, err := step.Run(context.Background(), ModeIncremental, []string{"quickstart.ipynb", "concepts/overview.md"})
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, 1, checker.calls)
	require.Len(t, checker.pages, 1)
	require.Equal(t, "quickstart/index.html", checker.pages[0].Rel)
}

func TestStepFullModeExcludesStormPage(t *testing.T) {
	checker := &stubChecker{}
	step := &Step{Selector: newSelector(t), Checker: checker}

	out, err := step.Run(context.Background(), ModeFull, nil)
	require.NoError(t, err)
	require.Equal(t, ModeFull, out.Mode)
	for _, p := range checker.pages {
		require.NotEqual(t, "tutorials/storm/storm.ipynb", p.Source)
	}
	require.Len(t, checker.pages, 2)
}

func TestStepPropagatesCheckerFailure(t *testing.T) {
	checker := &stubChecker{err: errors.New("boom")}
	step := &Step{Selector: newSelector(t), Checker: checker}

	_, err := step.Run(context.Background(), ModeFull, nil)
	require.Error(t, err)

	_, err = step.Run(context.Background(), Mode("sideways"), nil)
	require.Error(t, err)
}

func TestStepFullModeWithoutPages(t *testing.T) {
	checker := &stubChecker{}
	step := &Step{Selector: &Selector{DocsDir: t.TempDir(), SiteDir: t.TempDir()}, Checker: checker}

	out, err := step.Run(context.Background(), ModeFull, nil)
	require.NoError(t, err)
	require.True(t, out.Report.NoMatch)
	require.Zero(t, checker.calls)
}

func TestNewStepFromConfig(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Parse([]byte("repository:\n  path: " + root + "\n"))
	require.NoError(t, err)

	step, closeFn, err := NewStep(context.Background(), cfg, Options{Runner: exitWith(0, nil)})
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.Equal(t, filepath.Join(root, "docs", "docs"), step.Selector.DocsDir)
	b, ok := step.Checker.(*Builtin)
	require.True(t, ok)
	require.IsType(t, &MemoryCache{}, b.Cache)

	cfg.LinkCheck.Backend = config.LinkCheckCommand
	cfg.LinkCheck.Command = config.Command{Run: []string{"pytest", "--check-links"}}
	step, _, err = NewStep(context.Background(), cfg, Options{Runner: exitWith(0, nil)})
	require.NoError(t, err)
	cmd, ok := step.Checker.(*Command)
	require.True(t, ok)
	require.Equal(t, 5, cmd.NoMatchExitCode)
}

func TestCommandBackendReceivesTraceKeyAndExcludes(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Parse([]byte(`
repository:
  path: ` + root + `
linkcheck:
  backend: command
  command:
    run: [pytest, --check-links]
  exclude_flag: --check-links-ignore={pattern}
  replace_defaults: true
  exclude:
    - pattern: '^https://internal\.example\.com/'
      reason: VPN only
`))
	require.NoError(t, err)

	var seen runner.Command
	secrets := trigger.Secrets{
		StatsKey: trigger.NewSecret("STATS_API_KEY", "s"),
		TraceKey: trigger.NewSecret("LANGCHAIN_API_KEY", "t"),
	}
	step, closeFn, err := NewStep(context.Background(), cfg, Options{Runner: exitWith(0, &seen), Secrets: secrets})
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	_, err = step.Checker.Check(context.Background(), []Page{{HTML: "/site/a/index.html"}})
	require.NoError(t, err)
	require.Equal(t, []string{
		"pytest", "--check-links",
		`--check-links-ignore=^https://internal\.example\.com/`,
		"/site/a/index.html",
	}, seen.Args)
	require.Contains(t, seen.Env, "LANGCHAIN_API_KEY=t")
	require.NotContains(t, seen.Env, "STATS_API_KEY=s")
}

func TestCommandBackendWithoutTraceKey(t *testing.T) {
	cfg, err := config.Parse([]byte("repository:\n  path: " + t.TempDir() + "\n"))
	require.NoError(t, err)
	cfg.LinkCheck.Backend = config.LinkCheckCommand
	cfg.LinkCheck.Command = config.Command{Run: []string{"check"}}
	cfg.LinkCheck.ExcludeFlag = "--ignore"

	var seen runner.Command
	step, _, err := NewStep(context.Background(), cfg, Options{Runner: exitWith(0, &seen)})
	require.NoError(t, err)
	_, err = step.Checker.Check(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, seen.Env)
	require.Equal(t, "check", seen.Args[0])
	require.Equal(t, "--ignore", seen.Args[1])
	require.Equal(t, 1+2*len(DefaultRules), len(seen.Args), "every default rule reaches the checker")
}
