package config

import (
	"path/filepath"
	"time"
)

// Default values shared with other packages.
const (
	DefaultGroup           = "pages"
	DefaultNoMatchExitCode = 5
	DefaultPipelineTimeout = 10 * time.Minute
	DefaultStatsEnv        = "DOWNLOAD_STATS"
)

// DefaultApplier applies defaults for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

type repositoryDefaults struct{}

func (repositoryDefaults) Domain() string { return "repository" }

func (repositoryDefaults) ApplyDefaults(cfg *Config) error {
	r := &cfg.Repository
	setDefault(&r.Path, ".")
	setDefault(&r.DefaultBranch, "main")
	setDefault(&r.DocsDir, "docs/docs")
	setDefault(&r.SiteDir, "docs/site")
	setDefault(&r.NotebookGlob, "**/*.ipynb")
	setDefault(&r.WorkDir, ".docpublisher")

	s := &cfg.Secrets
	setDefault(&s.RepoTokenEnv, "GH_TOKEN")
	setDefault(&s.StatsKeyEnv, "STATS_API_KEY")
	setDefault(&s.TraceKeyEnv, "LANGCHAIN_API_KEY")
	return nil
}

type stepDefaults struct{}

func (stepDefaults) Domain() string { return "steps" }

func (stepDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Install.Sets == nil {
		cfg.Install.Sets = []PackageSet{
			{Name: "js", Lockfile: "yarn.lock", Command: Command{Run: []string{"yarn", "install", "--frozen-lockfile"}}},
			{Name: "python", Lockfile: "uv.lock", Command: Command{Run: []string{"uv", "sync", "--all-groups"}}},
		}
	}
	if cfg.Steps.Test.Empty() {
		cfg.Steps.Test = Command{Run: []string{"make", "test"}}
	}
	if cfg.Build.Command.Empty() {
		cfg.Build.Command = Command{Run: []string{"mkdocs", "build", "--strict"}, Dir: "docs"}
	}
	setDefault(&cfg.Build.StatsEnv, DefaultStatsEnv)
	if cfg.Build.Placeholders == nil {
		cfg.Build.Placeholders = map[string]string{
			"OPENAI_API_KEY":    "sk-placeholder",
			"ANTHROPIC_API_KEY": "sk-placeholder",
		}
	}
	return nil
}

type linkCheckDefaults struct{}

func (linkCheckDefaults) Domain() string { return "linkcheck" }

func (linkCheckDefaults) ApplyDefaults(cfg *Config) error {
	lc := &cfg.LinkCheck
	if b := NormalizeLinkCheckBackend(string(lc.Backend)); b != "" {
		lc.Backend = b
	} else if lc.Backend == "" {
		lc.Backend = LinkCheckBuiltin
	}
	if lc.NoMatchExitCode == 0 {
		lc.NoMatchExitCode = DefaultNoMatchExitCode
	}
	if lc.ExcludedPages == nil {
		lc.ExcludedPages = []string{"tutorials/storm/storm.ipynb"}
	}
	if lc.Concurrency <= 0 {
		lc.Concurrency = 8
	}
	setDefault(&lc.Timeout, "15s")
	setDefault(&lc.UserAgent, "docpublisher-linkcheck/1.0")
	if lc.NATS != nil {
		setDefault(&lc.NATS.Bucket, "docpublisher-links")
		setDefault(&lc.NATS.Subject, "docpublisher.links.broken")
		setDefault(&lc.NATS.TTL, "24h")
	}
	return nil
}

type publishDefaults struct{}

func (publishDefaults) Domain() string { return "publish" }

func (publishDefaults) ApplyDefaults(cfg *Config) error {
	p := &cfg.Publish
	if t := NormalizePublishTarget(string(p.Target)); t != "" {
		p.Target = t
	} else if p.Target == "" {
		p.Target = PublishDirectory
	}
	setDefault(&p.Group, DefaultGroup)
	setDefault(&p.ArchiveDir, filepath.Join(cfg.Repository.WorkDir, "artifacts"))
	if b := NormalizeLockBackend(string(p.Lock.Backend)); b != "" {
		p.Lock.Backend = b
	} else if p.Lock.Backend == "" {
		p.Lock.Backend = LockSQLite
	}
	setDefault(&p.Lock.Path, filepath.Join(cfg.Repository.WorkDir, "locks.db"))
	setDefault(&p.Lock.TTL, "30m")
	setDefault(&p.Lock.Poll, "2s")
	setDefault(&p.Directory.Path, "public")
	setDefault(&p.Git.Remote, "origin")
	setDefault(&p.Git.Branch, "gh-pages")
	setDefault(&p.Git.AuthorName, "docpublisher")
	setDefault(&p.Git.AuthorEmail, "docpublisher@localhost")
	return nil
}

type runtimeDefaults struct{}

func (runtimeDefaults) Domain() string { return "runtime" }

func (runtimeDefaults) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Pipeline.Timeout, DefaultPipelineTimeout.String())

	if m := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); m != "" {
		cfg.Retry.Backoff = m
	} else if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = RetryBackoffLinear
	}
	setDefault(&cfg.Retry.Initial, "1s")
	setDefault(&cfg.Retry.Max, "30s")
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}

	setDefault(&cfg.EventStore.Path, filepath.Join(cfg.Repository.WorkDir, "history.db"))
	setDefault(&cfg.Metrics.Job, "docpublisher")
	setDefault(&cfg.Daemon.Schedule, "0 6 * * *")
	setDefault(&cfg.Daemon.Branch, cfg.Repository.DefaultBranch)
	setDefault(&cfg.Daemon.Debounce, "2s")
	setDefault(&cfg.Logging.Format, "text")
	setDefault(&cfg.Logging.Level, "info")
	return nil
}

var appliers = []DefaultApplier{
	repositoryDefaults{},
	stepDefaults{},
	linkCheckDefaults{},
	publishDefaults{},
	runtimeDefaults{},
}

// ApplyDefaults fills unset fields. Repository defaults run first because
// later domains derive paths from them.
func ApplyDefaults(cfg *Config) error {
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Resolve returns rel joined to the repository path unless rel is absolute.
func (c *Config) Resolve(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Repository.Path, rel)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TimeoutDuration is the main-stage deadline.
func (p PipelineConfig) TimeoutDuration() time.Duration {
	return parseDuration(p.Timeout, DefaultPipelineTimeout)
}

// TimeoutDuration is the per-request timeout for link probes.
func (l LinkCheckConfig) TimeoutDuration() time.Duration {
	return parseDuration(l.Timeout, 15*time.Second)
}

// TTLDuration is how long cached link results stay valid.
func (n NATSConfig) TTLDuration() time.Duration {
	return parseDuration(n.TTL, 24*time.Hour)
}

// TTLDuration is the lease expiry for a crashed holder.
func (l LockConfig) TTLDuration() time.Duration {
	return parseDuration(l.TTL, 30*time.Minute)
}

// PollDuration is the base interval between lock acquisition attempts.
func (l LockConfig) PollDuration() time.Duration {
	return parseDuration(l.Poll, 2*time.Second)
}

// DebounceDuration delays config reloads after file events.
func (d DaemonConfig) DebounceDuration() time.Duration {
	return parseDuration(d.Debounce, 2*time.Second)
}
