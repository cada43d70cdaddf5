package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/daemon"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	RunNow bool `name:"run-now" help:"Queue one full run immediately after start"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.serve(ctx, g, root.Config, cfg)
}

func (d *DaemonCmd) serve(ctx context.Context, g *Global, path string, cfg *config.Config) error {
	hist, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()

	// one registry for the lifetime of the process, scraped on metrics.listen
	var (
		rec metrics.Recorder = metrics.NoopRecorder{}
		reg *prometheus.Registry
	)
	if cfg.Metrics.Enabled || cfg.Metrics.Listen != "" {
		prom := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
		rec, reg = prom, prom.Registry()
	}

	pr := &pipelineRunner{global: g, events: hist.events(), metrics: rec}
	dm, err := daemon.New(cfg, daemon.Options{
		ConfigPath: path,
		Registry:   reg,
		Run: func(ctx context.Context, cfg *config.Config, params trigger.Params) error {
			sum, err := pr.execute(ctx, cfg, params)
			if sum != nil {
				_ = sum.Write(g.out())
			}
			return err
		},
	})
	if err != nil {
		return ferrors.NewError(ferrors.CategoryDaemon, "failed to create daemon").WithCause(err).Build()
	}

	if d.RunNow {
		// the queue buffers jobs until Serve starts its worker
		if _, err := dm.Trigger(); err != nil {
			return ferrors.NewError(ferrors.CategoryDaemon, "failed to queue initial run").WithCause(err).Build()
		}
	}
	if err := dm.Serve(ctx); err != nil {
		return ferrors.NewError(ferrors.CategoryDaemon, "daemon failed").WithCause(err).Build()
	}
	return nil
}
