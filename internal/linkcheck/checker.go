// Package linkcheck selects rendered documentation pages and verifies the
// links they contain.
//
// Two modes exist. Full mode checks every notebook-derived page; incremental
// mode checks only pages whose notebook sources changed, and is skipped when
// there are none. Either mode hands the selected pages to a Checker: the
// built-in HTTP verifier or an external command. A checker reporting that
// nothing matched is a success.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
)

// NoNotebookChanges is logged when incremental mode has nothing to check.
const NoNotebookChanges = "no notebook files changed"

// ErrBrokenLinks is returned when verification found broken links.
var ErrBrokenLinks = errors.New("broken links found")

// ErrChecker is returned when an external checker fails.
var ErrChecker = errors.New("link checker failed")

// Mode selects which pages are checked.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// BrokenLink is one failing reference.
type BrokenLink struct {
	Page     string `json:"page"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	Error    string `json:"error"`
	Internal bool   `json:"internal"`
}

// ExcludedLink records a URL skipped by the exclude policy, with the reason.
type ExcludedLink struct {
	Page   string `json:"page"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Report summarizes one check.
type Report struct {
	Pages    int            `json:"pages"`
	Links    int            `json:"links"`
	Checked  int            `json:"checked"`
	Excluded []ExcludedLink `json:"excluded,omitempty"`
	Broken   []BrokenLink   `json:"broken,omitempty"`
	// NoMatch is set when there was nothing to verify.
	NoMatch bool `json:"no_match"`
}

// Checker verifies the links of the given pages. A non-nil error means the
// check failed; the report may still be returned for diagnostics.
type Checker interface {
	Check(ctx context.Context, pages []Page) (*Report, error)
}

// Command runs an external link checker with the page paths appended to its
// argv. Its NoMatchExitCode is remapped to success.
type Command struct {
	Runner runner.Runner
	Args   []string
	// ExcludeArgs carry the exclude policy and go between Args and the pages.
	ExcludeArgs     []string
	Dir             string
	Env             []string
	NoMatchExitCode int
	Logger          *slog.Logger
}

// Check implements Checker.
func (c *Command) Check(ctx context.Context, pages []Page) (*Report, error) {
	args := slices.Clone(c.Args)
	args = append(args, c.ExcludeArgs...)
	for _, p := range pages {
		args = append(args, p.HTML)
	}
	report := &Report{Pages: len(pages)}

	_, err := c.Runner.Run(ctx, runner.Command{Step: "linkcheck", Args: args, Dir: c.Dir, Env: c.Env})
	if err == nil {
		return report, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if code, ok := runner.ExitCode(err); ok && code == c.NoMatchExitCode {
		logger := c.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("Link checker matched nothing", logfields.ExitCode(code))
		report.NoMatch = true
		return report, nil
	}
	return report, fmt.Errorf("%w: %w", ErrChecker, err)
}

// Outcome is the result of one link-check step.
type Outcome struct {
	Mode    Mode
	Skipped bool
	Reason  string
	Pages   []Page
	Report  *Report
}

// Step ties page selection to a checker.
type Step struct {
	Selector *Selector
	Checker  Checker
	Logger   *slog.Logger
}

// Run selects pages for mode and checks them. changed holds ChangeSet paths
// relative to the docs directory and is ignored in full mode.
func (s *Step) Run(ctx context.Context, mode Mode, changed []string) (*Outcome, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := &Outcome{Mode: mode}

	switch mode {
	case ModeFull:
		pages, err := s.Selector.All()
		if err != nil {
			return out, err
		}
		out.Pages = pages
		if len(pages) == 0 {
			logger.Info("No notebook pages to check", slog.String("mode", string(mode)))
			out.Report = &Report{NoMatch: true}
			return out, nil
		}
	case ModeIncremental:
		out.Pages = s.Selector.Changed(changed)
		if len(out.Pages) == 0 {
			logger.Info(NoNotebookChanges, slog.String("mode", string(mode)))
			out.Skipped = true
			out.Reason = NoNotebookChanges
			return out, nil
		}
	default:
		return out, fmt.Errorf("unknown link check mode %q", mode)
	}

	logger.Info("Checking links", slog.String("mode", string(mode)), logfields.Count(len(out.Pages)))
	report, err := s.Checker.Check(ctx, out.Pages)
	out.Report = report
	return out, err
}
