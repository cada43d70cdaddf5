package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/logging"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/pipeline"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// loadConfig reads the configuration and applies its logging section unless
// the flags already chose.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, ferrors.ConfigError("failed to load configuration").
			WithCause(err).
			WithContext("path", root.Config).
			Build()
	}
	format := root.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	if err := logging.Initialize(logging.Options{Format: format, Level: cfg.Logging.Level, Verbose: root.Verbose}); err != nil {
		return nil, ferrors.ConfigError("invalid logging configuration").WithCause(err).Build()
	}
	return cfg, nil
}

// history bundles the event store with its projection.
type history struct {
	store      *eventstore.SQLiteStore
	projection *eventstore.RunHistoryProjection
	recorder   *eventstore.Recorder
}

// openHistory opens the event store, or returns nil when none is configured.
func openHistory(ctx context.Context, cfg *config.Config) (*history, error) {
	if cfg.EventStore.Path == "" {
		return nil, nil
	}
	store, err := eventstore.NewSQLiteStore(cfg.Resolve(cfg.EventStore.Path))
	if err != nil {
		return nil, ferrors.EventStoreError("failed to open run history").WithCause(err).Build()
	}
	proj := eventstore.NewRunHistoryProjection(store, 100)
	if err := proj.Rebuild(ctx); err != nil {
		_ = store.Close()
		return nil, ferrors.EventStoreError("failed to read run history").WithCause(err).Build()
	}
	return &history{store: store, projection: proj, recorder: eventstore.NewRecorder(store, proj)}, nil
}

func (h *history) Close() error {
	if h == nil {
		return nil
	}
	return h.store.Close()
}

// events returns the recorder or nil, keeping the interface value nil too.
func (h *history) events() pipeline.EventRecorder {
	if h == nil {
		return nil
	}
	return h.recorder
}

// newMetrics returns the Prometheus recorder when metrics are enabled.
func newMetrics(cfg *config.Config) (metrics.Recorder, *metrics.PrometheusRecorder) {
	if !cfg.Metrics.Enabled {
		return metrics.NoopRecorder{}, nil
	}
	prom := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	return prom, prom
}

// pushMetrics sends one-shot run metrics to the Pushgateway when configured.
// Failures are logged; they never change the run outcome.
func pushMetrics(ctx context.Context, cfg *config.Config, prom *metrics.PrometheusRecorder) {
	if prom == nil || cfg.Metrics.PushgatewayURL == "" {
		return
	}
	instance, _ := os.Hostname()
	if err := prom.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, instance); err != nil {
		slog.Warn("Failed to push metrics", logfields.URL(cfg.Metrics.PushgatewayURL), logfields.Error(err))
	}
}

// pipelineRunner executes pipeline runs with the process-scoped collaborators.
type pipelineRunner struct {
	global  *Global
	events  pipeline.EventRecorder
	metrics metrics.Recorder
}

func (r *pipelineRunner) execute(ctx context.Context, cfg *config.Config, params trigger.Params) (*pipeline.Summary, error) {
	run, err := trigger.NewRun(params, cfg.Repository.DefaultBranch)
	if err != nil {
		return nil, ferrors.ValidationError("invalid trigger").WithCause(err).Build()
	}
	secrets := trigger.SecretsFromEnv(cfg.Secrets, r.global.getenv)

	p, closer, err := pipeline.Assemble(ctx, cfg, run, secrets, pipeline.Options{
		Runner:     r.global.Runner,
		Events:     r.events,
		Metrics:    r.metrics,
		Logger:     slog.Default(),
		LintOutput: r.global.out(),
	})
	defer func() {
		if cerr := closer(); cerr != nil {
			slog.Warn("Failed to release run resources", logfields.RunID(run.ID), logfields.Error(cerr))
		}
	}()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, fmt.Sprintf("failed to prepare run %s", run.ID)).Build()
	}
	return p.Execute(ctx)
}
