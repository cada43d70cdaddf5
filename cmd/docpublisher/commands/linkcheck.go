package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpublisher/internal/changeset"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/linkcheck"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// LinkcheckCmd implements the 'linkcheck' command against an already built
// site. Incremental mode needs a trigger to compute the changed notebooks.
type LinkcheckCmd struct {
	TriggerFlags `embed:""`

	Mode   string `default:"full" enum:"full,incremental" help:"Check every page or only pages of changed notebooks"`
	Format string `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
}

func (l *LinkcheckCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := g.Runner
	if r == nil {
		r = runner.NewExec()
	}
	opts := linkcheck.Options{Runner: r, RunID: uuid.NewString(), Secrets: trigger.SecretsFromEnv(cfg.Secrets, g.getenv)}

	var changed []string
	mode := linkcheck.Mode(l.Mode)
	if mode == linkcheck.ModeIncremental {
		params, err := l.Params(g.getenv)
		if err != nil {
			return err
		}
		run, err := trigger.NewRun(params, cfg.Repository.DefaultBranch)
		if err != nil {
			return ferrors.ValidationError("invalid trigger").WithCause(err).Build()
		}
		opts.RunID, opts.Branch = run.ID, run.Branch
		// an unreadable repository degrades to an empty change set
		repo, _ := git.Open(cfg.Repository.Path)
		cs := changeset.Detect(ctx, repo, run, cfg.Repository.DocsDir)
		changed = cs.Under(cfg.Repository.DocsDir, cfg.Repository.NotebookGlob)
	}

	step, closer, err := linkcheck.NewStep(ctx, cfg, opts)
	if err != nil {
		return ferrors.StepError(ferrors.CategoryLinkCheck, "failed to set up link check").WithCause(err).Build()
	}
	defer func() { _ = closer() }()

	out, err := step.Run(ctx, mode, changed)
	if werr := writeOutcome(g.out(), l.Format, out); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return ferrors.StepError(ferrors.CategoryLinkCheck, "link check failed").WithCause(err).Build()
	}
	return nil
}

func writeOutcome(w io.Writer, format string, out *linkcheck.Outcome) error {
	if out == nil {
		return nil
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Mode    linkcheck.Mode    `json:"mode"`
			Skipped bool              `json:"skipped"`
			Reason  string            `json:"reason,omitempty"`
			Report  *linkcheck.Report `json:"report,omitempty"`
		}{out.Mode, out.Skipped, out.Reason, out.Report})
	}

	if out.Skipped {
		_, err := fmt.Fprintf(w, "Link check skipped: %s\n", out.Reason)
		return err
	}
	rep := out.Report
	if rep == nil {
		return nil
	}
	if rep.NoMatch {
		_, err := fmt.Fprintln(w, "Link check matched no pages")
		return err
	}
	for _, b := range rep.Broken {
		fmt.Fprintf(w, "BROKEN %s -> %s: %s\n", b.Source, b.URL, b.Error)
	}
	for _, e := range rep.Excluded {
		fmt.Fprintf(w, "excluded %s (%s)\n", e.URL, e.Reason)
	}
	_, err := fmt.Fprintf(w, "%s check: %d pages, %d links checked, %d broken, %d excluded\n",
		out.Mode, rep.Pages, rep.Checked, len(rep.Broken), len(rep.Excluded))
	return err
}
