// Package build runs the static site generator and turns its output into an
// immutable artifact.
//
// The generator is an external command. This package controls only its
// environment: the statistics flag, placeholder provider keys and forwarded
// secrets. Statistics download failures are the generator's concern; a
// non-zero generator exit fails the step whatever the cause.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// Sentinel errors for build failures; always wrapped with context.
var (
	ErrGenerator = errors.New("docpublisher: generator error")
	ErrNoOutput  = errors.New("docpublisher: build produced no output")
)

// Service builds the documentation site.
type Service interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request carries the per-run inputs of a build.
type Request struct {
	Release bool
	Secrets trigger.Secrets
}

// Result describes a successful build.
type Result struct {
	Artifact     artifact.Artifact
	StatsEnabled bool
	Duration     time.Duration
}

// GeneratorService runs the configured generator command.
type GeneratorService struct {
	Runner  runner.Runner
	RepoDir string
	// SiteDir is where the generator writes the rendered site.
	SiteDir string
	Config  config.BuildConfig
	Logger  *slog.Logger
}

// NewGeneratorService wires a service from the loaded configuration.
func NewGeneratorService(cfg *config.Config, r runner.Runner) *GeneratorService {
	return &GeneratorService{
		Runner:  r,
		RepoDir: cfg.Repository.Path,
		SiteDir: cfg.Resolve(cfg.Repository.SiteDir),
		Config:  cfg.Build,
		Logger:  slog.Default(),
	}
}

// Run clears the previous site output, runs the generator and snapshots the
// result.
func (s *GeneratorService) Run(ctx context.Context, req Request) (*Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.RemoveAll(s.SiteDir); err != nil {
		return nil, fmt.Errorf("clear site dir %s: %w", s.SiteDir, err)
	}

	start := time.Now()
	env := Environment(s.Config, req)
	logger.Info("Building site",
		logfields.Release(req.Release),
		slog.String("stats_env", s.Config.StatsEnv),
		logfields.Path(s.SiteDir))

	_, err := s.Runner.Run(ctx, runner.Command{
		Step: "build",
		Args: s.Config.Command.Run,
		Dir:  filepath.Join(s.RepoDir, s.Config.Command.Dir),
		Env:  env,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerator, err)
	}

	art, err := artifact.FromDir(s.SiteDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoOutput, err)
	}
	res := &Result{Artifact: art, StatsEnabled: req.Release, Duration: time.Since(start)}
	logger.Info("Site built",
		logfields.Count(art.FileCount),
		slog.String("digest", art.ShortDigest()),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// Environment assembles the generator's extra environment. Later entries
// win: configured command env, then placeholder keys, then the statistics
// flag and the stats-service key. The trace key belongs to link-check only.
func Environment(cfg config.BuildConfig, req Request) []string {
	var env []string
	env = append(env, sortedEnv(cfg.Command.Env)...)
	env = append(env, sortedEnv(cfg.Placeholders)...)
	env = append(env, cfg.StatsEnv+"="+strconv.FormatBool(req.Release))
	if kv := req.Secrets.StatsKey.Env(); kv != "" {
		env = append(env, kv)
	}
	return env
}

func sortedEnv(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
