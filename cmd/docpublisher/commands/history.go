package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit  int    `short:"n" default:"10" help:"Number of runs to show"`
	Run    string `name:"run" help:"Show the steps of one run"`
	Format string `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cfg.EventStore.Path == "" {
		return ferrors.ConfigError("run history is disabled").
			WithHint("set eventstore.path").
			Build()
	}
	hist, err := openHistory(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()

	runs := hist.projection.History(h.Limit)
	if h.Run != "" {
		s, ok := hist.projection.Get(h.Run)
		if !ok {
			return ferrors.NewError(ferrors.CategoryNotFound, "run not found").WithContext("run_id", h.Run).Build()
		}
		runs = []eventstore.RunSummary{s}
	}

	if h.Format == "json" {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if h.Run != "" {
		return writeRunSteps(g.out(), runs[0])
	}
	return writeHistory(g.out(), runs)
}

func writeHistory(w io.Writer, runs []eventstore.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tEVENT\tBRANCH\tRELEASE\tSTATUS\tDURATION\tFAILED STEP")
	for _, r := range runs {
		failed := r.FailedStep
		if failed == "" {
			failed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			short(r.RunID), r.StartedAt.Local().Format(time.DateTime), r.Event, r.Branch,
			r.Release, r.Status, r.Duration.Round(time.Millisecond), failed)
	}
	return tw.Flush()
}

func writeRunSteps(w io.Writer, r eventstore.RunSummary) error {
	fmt.Fprintf(w, "Run %s (%s on %s) %s\n\n", r.RunID, r.Event, r.Branch, r.Status)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tDETAIL")
	for _, s := range r.Steps {
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Step, s.Status, time.Duration(s.DurationMS)*time.Millisecond, detail)
	}
	return tw.Flush()
}
