package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"git.home.luguber.info/inful/docpublisher/internal/changeset"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// ChangesCmd implements the 'changes' command.
type ChangesCmd struct {
	TriggerFlags `embed:""`

	Format string `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
}

func (c *ChangesCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	params, err := c.Params(g.getenv)
	if err != nil {
		return err
	}
	run, err := trigger.NewRun(params, cfg.Repository.DefaultBranch)
	if err != nil {
		return ferrors.ValidationError("invalid trigger").WithCause(err).Build()
	}
	repo, err := git.Open(cfg.Repository.Path)
	if err != nil {
		return ferrors.GitError("failed to open repository").WithCause(err).WithContext("path", cfg.Repository.Path).Build()
	}

	cs := changeset.Detect(context.Background(), repo, run, cfg.Repository.DocsDir)
	if c.Format == "json" {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(cs)
	}
	return writeChangeSet(g.out(), cs)
}

func writeChangeSet(w io.Writer, cs changeset.ChangeSet) error {
	if cs.Degraded {
		_, err := fmt.Fprintf(w, "No changes determined: %s\n", cs.Reason)
		return err
	}
	if cs.Empty() {
		_, err := fmt.Fprintf(w, "No documentation changes between %s and %s\n", short(cs.Base), short(cs.Head))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range cs.Entries {
		if e.OldPath != "" {
			fmt.Fprintf(tw, "%s\t%s\t(from %s)\n", e.Action, e.Path, e.OldPath)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", e.Action, e.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d files changed between %s and %s\n", len(cs.Entries), short(cs.Base), short(cs.Head))
	return err
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
