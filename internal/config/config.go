package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up when --config is not given.
const DefaultFile = "docpublisher.yaml"

// Config is the complete docpublisher configuration.
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Install    InstallConfig    `yaml:"install"`
	Steps      StepsConfig      `yaml:"steps"`
	Build      BuildConfig      `yaml:"build"`
	LinkCheck  LinkCheckConfig  `yaml:"linkcheck"`
	Publish    PublishConfig    `yaml:"publish"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Retry      RetryConfig      `yaml:"retry"`
	EventStore EventStoreConfig `yaml:"eventstore"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RepositoryConfig locates the documentation inside the checked out repository.
type RepositoryConfig struct {
	Path          string `yaml:"path"`
	DefaultBranch string `yaml:"default_branch"`
	// DocsDir is the documentation root, relative to Path. Change detection is scoped to it.
	DocsDir string `yaml:"docs_dir"`
	// SiteDir is where the generator renders the site, relative to Path.
	SiteDir string `yaml:"site_dir"`
	// NotebookGlob selects notebook sources below DocsDir (doublestar syntax).
	NotebookGlob string `yaml:"notebook_glob"`
	// WorkDir holds per-run workspaces and the dependency cache markers.
	WorkDir string `yaml:"work_dir"`
}

// SecretsConfig names the environment variables holding opaque credentials.
type SecretsConfig struct {
	RepoTokenEnv string `yaml:"repo_token_env"`
	StatsKeyEnv  string `yaml:"stats_key_env"`
	TraceKeyEnv  string `yaml:"trace_key_env"`
}

// Command is an argv with an optional working directory relative to the repository.
type Command struct {
	Run []string          `yaml:"run"`
	Dir string            `yaml:"dir,omitempty"`
	Env map[string]string `yaml:"env,omitempty"`
}

// Empty reports whether no command is configured.
func (c Command) Empty() bool { return len(c.Run) == 0 }

// PackageSet is one lockfile-keyed dependency installation.
type PackageSet struct {
	Name     string  `yaml:"name"`
	Lockfile string  `yaml:"lockfile"`
	Command  Command `yaml:"command"`
}

// PrivateDependency is installed only when CredentialEnv is set.
type PrivateDependency struct {
	CredentialEnv string  `yaml:"credential_env"`
	Command       Command `yaml:"command"`
}

// InstallConfig describes the dependency install step.
type InstallConfig struct {
	Sets    []PackageSet       `yaml:"sets"`
	Private *PrivateDependency `yaml:"private,omitempty"`
}

// StepsConfig holds the validation commands.
type StepsConfig struct {
	Test Command `yaml:"test"`
	// Lint runs an external linter; when empty the built-in linter checks DocsDir.
	Lint Command `yaml:"lint"`
}

// BuildConfig describes the site generator invocation.
type BuildConfig struct {
	Command Command `yaml:"command"`
	// StatsEnv is set to "true" on release runs and "false" otherwise.
	StatsEnv string `yaml:"stats_env"`
	// Placeholders satisfy the generator's presence checks for provider keys.
	Placeholders map[string]string `yaml:"placeholders"`
}

// ExcludeRule skips URLs matching Pattern during link checking.
type ExcludeRule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// NATSConfig enables the shared link cache and broken-link events.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
	Subject string `yaml:"subject"`
	TTL     string `yaml:"ttl"`
}

// LinkCheckConfig drives page selection and link verification.
type LinkCheckConfig struct {
	Backend LinkCheckBackend `yaml:"backend"`
	Command Command          `yaml:"command"`
	// ExcludeFlag hands each exclude rule to the command backend. A flag
	// containing {pattern} becomes one argument with the pattern substituted;
	// otherwise the pattern follows the flag as its own argument.
	ExcludeFlag string `yaml:"exclude_flag"`
	// NoMatchExitCode is the checker's "nothing matched" status, treated as success.
	NoMatchExitCode int `yaml:"no_match_exit_code"`
	// ExcludedPages are notebook sources (relative to DocsDir) never checked.
	ExcludedPages   []string      `yaml:"excluded_pages"`
	Exclude         []ExcludeRule `yaml:"exclude"`
	ReplaceDefaults bool          `yaml:"replace_defaults"`
	Concurrency     int           `yaml:"concurrency"`
	Timeout         string        `yaml:"timeout"`
	SkipExternal    bool          `yaml:"skip_external"`
	UserAgent       string        `yaml:"user_agent"`
	// SiteBasePath is the URL prefix the site is served under (e.g. "/docs/"),
	// stripped from root-relative links before resolving them on disk.
	SiteBasePath string      `yaml:"site_base_path"`
	NATS         *NATSConfig `yaml:"nats,omitempty"`
}

// LockConfig configures deploy-target serialization.
type LockConfig struct {
	Backend LockBackend `yaml:"backend"`
	Path    string      `yaml:"path"`
	TTL     string      `yaml:"ttl"`
	Poll    string      `yaml:"poll"`
}

// DirectoryTarget deploys by replacing a local directory.
type DirectoryTarget struct {
	Path string `yaml:"path"`
}

// GitTarget deploys by committing the site to a branch and pushing it.
type GitTarget struct {
	Remote      string `yaml:"remote"`
	Branch      string `yaml:"branch"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	// NoPush commits locally only.
	NoPush bool `yaml:"no_push"`
}

// PublishConfig selects and configures the hosting target.
type PublishConfig struct {
	Target     PublishTarget   `yaml:"target"`
	Group      string          `yaml:"group"`
	ArchiveDir string          `yaml:"archive_dir"`
	Lock       LockConfig      `yaml:"lock"`
	Directory  DirectoryTarget `yaml:"directory"`
	Git        GitTarget       `yaml:"git"`
}

// PipelineConfig bounds the main stage.
type PipelineConfig struct {
	Timeout string `yaml:"timeout"`
}

// RetryConfig is the backoff used for lock polling and rate-limited probes.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    string           `yaml:"initial"`
	Max        string           `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// EventStoreConfig enables run history. An empty Path disables it.
type EventStoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
	// Listen serves /metrics in daemon mode (e.g. ":9464").
	Listen string `yaml:"listen"`
}

// DaemonConfig schedules full link-check runs.
type DaemonConfig struct {
	Schedule string `yaml:"schedule"`
	Branch   string `yaml:"branch"`
	Debounce string `yaml:"debounce"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads, expands, defaults and validates the configuration at path.
// A missing file at the default location yields the defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles(filepath.Dir(path))

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && filepath.Base(path) == DefaultFile:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML without touching the environment or filesystem.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
