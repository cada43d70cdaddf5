// Package daemon keeps docpublisher resident: a cron schedule enqueues
// full link-check runs on a single-worker queue, the configuration file is
// reloaded when it changes, and metrics are served over HTTP.
package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// RunFunc executes one pipeline run of params under cfg.
type RunFunc func(ctx context.Context, cfg *config.Config, params trigger.Params) error

// Options configure a Daemon. Run is required.
type Options struct {
	// ConfigPath enables hot reload when set.
	ConfigPath string
	Run        RunFunc
	// Registry is served on Metrics.Listen; nil serves an empty registry.
	Registry *prometheus.Registry
	Logger   *slog.Logger
	// QueueSize bounds pending runs.
	QueueSize int
}

// Daemon is the resident scheduler process.
type Daemon struct {
	opts   Options
	cfg    atomic.Pointer[config.Config]
	logger *slog.Logger

	queue     *Queue
	scheduler *Scheduler
	watcher   *ConfigWatcher
	server    *http.Server
	addr      atomic.Value
}

// New creates a daemon for cfg.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon config is nil")
	}
	if opts.Run == nil {
		return nil, fmt.Errorf("daemon run function is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Daemon{opts: opts, logger: opts.Logger}
	d.cfg.Store(cfg)
	d.queue = NewQueue(opts.QueueSize, d.execute, d.logger)

	sched, err := NewScheduler(d.queue, d.logger)
	if err != nil {
		return nil, err
	}
	d.scheduler = sched
	return d, nil
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config { return d.cfg.Load() }

// Queue exposes the run queue for manual triggers.
func (d *Daemon) Queue() *Queue { return d.queue }

// MetricsAddr returns the bound metrics address once Serve is listening.
func (d *Daemon) MetricsAddr() string {
	if v, ok := d.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Serve runs until ctx is canceled, then shuts every component down.
func (d *Daemon) Serve(ctx context.Context) error {
	cfg := d.Config()
	if err := d.scheduler.Schedule(cfg.Daemon.Schedule, cfg.Daemon.Branch); err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		if err := d.startMetrics(cfg.Metrics.Listen); err != nil {
			_ = d.scheduler.Stop()
			return err
		}
	}

	if d.opts.ConfigPath != "" {
		w, err := NewConfigWatcher(d.opts.ConfigPath, cfg.Daemon.DebounceDuration(), d.Reload, d.logger)
		if err != nil {
			d.shutdown()
			return err
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			d.shutdown()
			return err
		}
		d.watcher = w
	}

	d.queue.Start(ctx)
	d.scheduler.Start()
	d.logger.Info("Daemon started",
		slog.String("cron", cfg.Daemon.Schedule),
		logfields.Branch(cfg.Daemon.Branch),
		slog.String("metrics", d.MetricsAddr()))

	<-ctx.Done()
	d.logger.Info("Daemon shutting down")
	d.shutdown()
	return nil
}

// Reload swaps in cfg and reschedules. The metrics listener is bound once
// and keeps its address.
func (d *Daemon) Reload(_ context.Context, cfg *config.Config) error {
	old := d.Config()
	if err := d.scheduler.Schedule(cfg.Daemon.Schedule, cfg.Daemon.Branch); err != nil {
		return err
	}
	if cfg.Metrics.Listen != old.Metrics.Listen {
		d.logger.Warn("Metrics listen address change requires restart",
			slog.String("current", old.Metrics.Listen),
			slog.String("requested", cfg.Metrics.Listen))
	}
	d.cfg.Store(cfg)
	return nil
}

// Trigger queues an immediate full run of the scheduled branch.
func (d *Daemon) Trigger() (*Job, error) {
	cfg := d.Config()
	return d.queue.Enqueue(SourceManual, trigger.Params{Event: trigger.EventSchedule, Branch: cfg.Daemon.Branch})
}

func (d *Daemon) execute(ctx context.Context, job *Job) error {
	return d.opts.Run(ctx, d.Config(), job.Params)
}

func (d *Daemon) startMetrics(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", listen, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.opts.Registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.addr.Store(ln.Addr().String())

	go func() {
		if err := d.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return nil
}

func (d *Daemon) shutdown() {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("Config watcher close failed", logfields.Error(err))
		}
	}
	if err := d.scheduler.Stop(); err != nil {
		d.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
	d.queue.Stop()
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
	}
}
