// Package logging configures the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Supported handler formats.
const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// LevelEnv overrides the log level when --verbose is not given.
const LevelEnv = "DOCPUBLISHER_LOG_LEVEL"

// Options selects the handler and level.
type Options struct {
	Format  string
	Level   string
	Verbose bool
	Output  io.Writer
}

// ResolveLevel returns the effective level. Verbose wins over the
// environment, which wins over the configured level name.
func ResolveLevel(verbose bool, name string) (slog.Level, error) {
	if verbose {
		return slog.LevelDebug, nil
	}
	if env := strings.TrimSpace(os.Getenv(LevelEnv)); env != "" {
		name = env
	}
	if name == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("could not parse log level %q: %w", name, err)
	}
	return lvl, nil
}

// NewHandler builds a handler for the given options without installing it.
func NewHandler(opts Options) (slog.Handler, error) {
	lvl, err := ResolveLevel(opts.Verbose, opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}
	switch strings.ToLower(opts.Format) {
	case "", Text:
		return slog.NewTextHandler(out, ho), nil
	case JSON:
		return slog.NewJSONHandler(out, ho), nil
	case Tint:
		return tint.NewHandler(out, &tint.Options{Level: lvl, AddSource: ho.AddSource}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", opts.Format)
	}
}

// Initialize installs the handler as the slog default.
func Initialize(opts Options) error {
	h, err := NewHandler(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}
