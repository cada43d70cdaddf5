package trigger

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/docpublisher/internal/config"
)

const redacted = "[REDACTED]"

// Secret is an opaque credential. It is never parsed or validated, only
// forwarded into child process environments or transport auth.
type Secret struct {
	name  string
	value string
}

// NewSecret wraps value under the environment variable name it is exported as.
func NewSecret(name, value string) Secret { return Secret{name: name, value: value} }

// Name is the environment variable the secret is exported as.
func (s Secret) Name() string { return s.name }

// Present reports whether a value was supplied.
func (s Secret) Present() bool { return s.value != "" }

// Env renders NAME=value, or "" when absent.
func (s Secret) Env() string {
	if !s.Present() {
		return ""
	}
	return s.name + "=" + s.value
}

// Reveal returns the raw value for handing to a transport's auth method.
func (s Secret) Reveal() string { return s.value }

func (s Secret) String() string { return redacted }

// LogValue keeps values out of logs.
func (s Secret) LogValue() slog.Value {
	if !s.Present() {
		return slog.StringValue("")
	}
	return slog.StringValue(redacted)
}

// Secrets holds the run's credentials.
type Secrets struct {
	RepoToken Secret
	StatsKey  Secret
	TraceKey  Secret
}

// SecretsFromEnv reads the configured variables through lookup.
func SecretsFromEnv(cfg config.SecretsConfig, lookup func(string) string) Secrets {
	if lookup == nil {
		lookup = os.Getenv
	}
	read := func(name string) Secret {
		if name == "" {
			return Secret{}
		}
		return NewSecret(name, lookup(name))
	}
	return Secrets{
		RepoToken: read(cfg.RepoTokenEnv),
		StatsKey:  read(cfg.StatsKeyEnv),
		TraceKey:  read(cfg.TraceKeyEnv),
	}
}

// LogValue reports presence only.
func (s Secrets) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("repo_token", s.RepoToken.Present()),
		slog.Bool("stats_key", s.StatsKey.Present()),
		slog.Bool("trace_key", s.TraceKey.Present()),
	)
}
