package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		v.validateRepository,
		v.validateSteps,
		v.validateLinkCheck,
		v.validatePublish,
		v.validateDurations,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validateRepository() error {
	r := cv.config.Repository
	if r.DefaultBranch == "" {
		return errors.New("repository.default_branch cannot be empty")
	}
	if !doublestar.ValidatePattern(r.NotebookGlob) {
		return fmt.Errorf("repository.notebook_glob is not a valid pattern: %q", r.NotebookGlob)
	}
	return nil
}

func (cv *configurationValidator) validateSteps() error {
	seen := make(map[string]bool)
	for i, set := range cv.config.Install.Sets {
		if set.Name == "" {
			return fmt.Errorf("install.sets[%d].name cannot be empty", i)
		}
		if seen[set.Name] {
			return fmt.Errorf("duplicate install set name: %s", set.Name)
		}
		seen[set.Name] = true
		if set.Lockfile == "" {
			return fmt.Errorf("install set %s: lockfile cannot be empty", set.Name)
		}
		if set.Command.Empty() {
			return fmt.Errorf("install set %s: command cannot be empty", set.Name)
		}
	}
	if p := cv.config.Install.Private; p != nil {
		if p.CredentialEnv == "" {
			return errors.New("install.private.credential_env cannot be empty")
		}
		if p.Command.Empty() {
			return errors.New("install.private.command cannot be empty")
		}
	}
	if cv.config.Steps.Test.Empty() {
		return errors.New("steps.test.run cannot be empty")
	}
	if cv.config.Build.Command.Empty() {
		return errors.New("build.command.run cannot be empty")
	}
	return nil
}

func (cv *configurationValidator) validateLinkCheck() error {
	lc := cv.config.LinkCheck
	switch lc.Backend {
	case LinkCheckBuiltin:
	case LinkCheckCommand:
		if lc.Command.Empty() {
			return errors.New("linkcheck.command.run is required for the command backend")
		}
		// the exclude list must reach the external checker too
		if lc.ExcludeFlag == "" && (len(lc.Exclude) > 0 || !lc.ReplaceDefaults) {
			return errors.New("linkcheck.exclude_flag is required for the command backend unless replace_defaults is set with no exclude rules")
		}
	default:
		return fmt.Errorf("invalid linkcheck.backend: %s", lc.Backend)
	}
	if lc.NoMatchExitCode < 1 || lc.NoMatchExitCode > 255 {
		return fmt.Errorf("linkcheck.no_match_exit_code must be in 1..255, got %d", lc.NoMatchExitCode)
	}
	for i, r := range lc.Exclude {
		if r.Pattern == "" {
			return fmt.Errorf("linkcheck.exclude[%d].pattern cannot be empty", i)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("linkcheck.exclude[%d]: %w", i, err)
		}
	}
	if lc.NATS != nil && lc.NATS.URL == "" {
		return errors.New("linkcheck.nats.url cannot be empty when nats is configured")
	}
	return nil
}

func (cv *configurationValidator) validatePublish() error {
	p := cv.config.Publish
	switch p.Target {
	case PublishDirectory:
		if p.Directory.Path == "" {
			return errors.New("publish.directory.path cannot be empty")
		}
	case PublishGit:
		if p.Git.Branch == "" {
			return errors.New("publish.git.branch cannot be empty")
		}
		if p.Git.Branch == cv.config.Repository.DefaultBranch {
			return fmt.Errorf("publish.git.branch must differ from the default branch %q", p.Git.Branch)
		}
	default:
		return fmt.Errorf("invalid publish.target: %s", p.Target)
	}
	switch p.Lock.Backend {
	case LockSQLite, LockMemory:
	default:
		return fmt.Errorf("invalid publish.lock.backend: %s", p.Lock.Backend)
	}
	if p.Group == "" {
		return errors.New("publish.group cannot be empty")
	}
	return nil
}

func (cv *configurationValidator) validateDurations() error {
	c := cv.config
	fields := map[string]string{
		"pipeline.timeout":  c.Pipeline.Timeout,
		"linkcheck.timeout": c.LinkCheck.Timeout,
		"publish.lock.ttl":  c.Publish.Lock.TTL,
		"publish.lock.poll": c.Publish.Lock.Poll,
		"retry.initial":     c.Retry.Initial,
		"retry.max":         c.Retry.Max,
		"daemon.debounce":   c.Daemon.Debounce,
	}
	if c.LinkCheck.NATS != nil {
		fields["linkcheck.nats.ttl"] = c.LinkCheck.NATS.TTL
	}
	for name, raw := range fields {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if NormalizeRetryBackoff(string(c.Retry.Backoff)) == "" {
		return fmt.Errorf("invalid retry.backoff: %s", c.Retry.Backoff)
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries cannot be negative")
	}
	return nil
}
