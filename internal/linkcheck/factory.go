package linkcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/deps"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// Options carries run-scoped inputs for NewStep.
type Options struct {
	Runner runner.Runner
	RunID  string
	Branch string
	Logger *slog.Logger
	// Secrets supplies the trace-service key to an external checker.
	Secrets trigger.Secrets
}

// NewStep builds a Step from configuration. The returned close function
// releases the NATS connection when one was opened; it is never nil.
func NewStep(ctx context.Context, cfg *config.Config, opts Options) (*Step, func() error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lc := cfg.LinkCheck
	closer := func() error { return nil }

	selector := &Selector{
		DocsDir:  cfg.Resolve(cfg.Repository.DocsDir),
		SiteDir:  cfg.Resolve(cfg.Repository.SiteDir),
		Glob:     cfg.Repository.NotebookGlob,
		Excluded: lc.ExcludedPages,
		Logger:   logger,
	}

	policy, err := NewPolicy(lc.Exclude, lc.ReplaceDefaults)
	if err != nil {
		return nil, closer, err
	}

	var checker Checker
	switch lc.Backend {
	case config.LinkCheckCommand:
		env := deps.EnvList(lc.Command.Env)
		if kv := opts.Secrets.TraceKey.Env(); kv != "" {
			env = append(env, kv)
		}
		checker = &Command{
			Runner:          opts.Runner,
			Args:            lc.Command.Run,
			ExcludeArgs:     policy.Args(lc.ExcludeFlag),
			Dir:             filepath.Join(cfg.Repository.Path, lc.Command.Dir),
			Env:             env,
			NoMatchExitCode: lc.NoMatchExitCode,
			Logger:          logger,
		}
	default:
		b := &Builtin{
			SiteDir:      selector.SiteDir,
			BasePath:     lc.SiteBasePath,
			Policy:       policy,
			Client:       &http.Client{Timeout: lc.TimeoutDuration(), Transport: http.DefaultTransport.(*http.Transport).Clone()},
			UserAgent:    lc.UserAgent,
			Concurrency:  lc.Concurrency,
			Retry:        retry.FromConfig(cfg.Retry),
			SkipExternal: lc.SkipExternal,
			RunID:        opts.RunID,
			Branch:       opts.Branch,
			Logger:       logger,
		}
		if lc.NATS != nil && lc.NATS.URL != "" {
			nc, err := NewNATSClient(ctx, *lc.NATS)
			if err != nil {
				return nil, closer, fmt.Errorf("link cache: %w", err)
			}
			b.Cache = nc
			b.Events = nc
			closer = nc.Close
		} else {
			b.Cache = NewMemoryCache(0)
		}
		checker = b
	}

	return &Step{Selector: selector, Checker: checker, Logger: logger}, closer, nil
}
