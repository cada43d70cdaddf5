// Package deps installs the JS and Python package sets a documentation
// build needs. Each set is keyed by a hash of its lockfile and command; a
// completed install leaves a marker so later runs with the same key skip it.
package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
)

// Outcome reports what happened to one package set.
type Outcome struct {
	Name    string
	Key     string
	Cached  bool
	Skipped bool
	Reason  string
}

// Installer runs the configured installs.
type Installer struct {
	Runner   runner.Runner
	RepoDir  string
	CacheDir string
	Sets     []config.PackageSet
	Private  *config.PrivateDependency
	// Lookup reads the private credential; defaults to os.Getenv.
	Lookup func(string) string
}

// Install processes every set in order, then the private dependency. The
// first failing install aborts.
func (in *Installer) Install(ctx context.Context) ([]Outcome, error) {
	if err := os.MkdirAll(in.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("create dependency cache dir: %w", err)
	}
	var out []Outcome
	for _, set := range in.Sets {
		o, err := in.installSet(ctx, set)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	if in.Private != nil {
		o, err := in.installPrivate(ctx, *in.Private)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (in *Installer) installSet(ctx context.Context, set config.PackageSet) (Outcome, error) {
	key, err := CacheKey(filepath.Join(in.RepoDir, set.Lockfile), set.Command.Run)
	if err != nil {
		slog.Warn("Lockfile unavailable; installing without cache",
			slog.String("set", set.Name), logfields.Path(set.Lockfile), logfields.Error(err))
		return Outcome{Name: set.Name}, in.run(ctx, "install:"+set.Name, set.Command)
	}

	marker := in.markerPath(set.Name, key)
	if _, err := os.Stat(marker); err == nil {
		slog.Info("Dependency cache hit", slog.String("set", set.Name), logfields.CacheKey(key))
		return Outcome{Name: set.Name, Key: key, Cached: true}, nil
	}

	if err := in.run(ctx, "install:"+set.Name, set.Command); err != nil {
		return Outcome{Name: set.Name, Key: key}, err
	}
	if err := writeMarker(marker, key); err != nil {
		slog.Warn("Failed to record dependency cache marker", logfields.Path(marker), logfields.Error(err))
	}
	return Outcome{Name: set.Name, Key: key}, nil
}

func (in *Installer) installPrivate(ctx context.Context, p config.PrivateDependency) (Outcome, error) {
	lookup := in.Lookup
	if lookup == nil {
		lookup = os.Getenv
	}
	cred := lookup(p.CredentialEnv)
	if cred == "" {
		slog.Info("Skipping private dependency: credential not set (external contributor)",
			slog.String("credential_env", p.CredentialEnv))
		return Outcome{Name: "private", Skipped: true, Reason: "credential not set"}, nil
	}
	cmd := p.Command
	env := make(map[string]string, len(cmd.Env)+1)
	for k, v := range cmd.Env {
		env[k] = v
	}
	env[p.CredentialEnv] = cred
	cmd.Env = env
	return Outcome{Name: "private"}, in.run(ctx, "install:private", cmd)
}

func (in *Installer) run(ctx context.Context, step string, c config.Command) error {
	_, err := in.Runner.Run(ctx, runner.Command{
		Step: step,
		Args: c.Run,
		Dir:  filepath.Join(in.RepoDir, c.Dir),
		Env:  EnvList(c.Env),
	})
	return err
}

func (in *Installer) markerPath(name, key string) string {
	return filepath.Join(in.CacheDir, fmt.Sprintf("%s-%s.done", name, key[:16]))
}

// CacheKey hashes the lockfile contents together with the install command.
func CacheKey(lockfile string, argv []string) (string, error) {
	data, err := os.ReadFile(lockfile)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(argv, "\x00")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeMarker publishes the marker with a rename so concurrent writers of
// the same key never expose a partial file.
func writeMarker(path, key string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".marker-*")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tmp, "%s\n%s\n", key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EnvList renders a map as KEY=value entries.
func EnvList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
