package trigger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/config"
)

func TestIsRelease(t *testing.T) {
	cases := []struct {
		event  Event
		branch string
		want   bool
	}{
		{EventPush, "main", true},
		{EventWorkflowDispatch, "main", true},
		{EventSchedule, "main", true},
		{EventPullRequest, "main", false},
		{EventPush, "feature", false},
		{EventSchedule, "release-1", false},
		{EventPush, "", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsRelease(c.event, c.branch, "main"), "%s on %s", c.event, c.branch)
	}
}

func TestNewRun(t *testing.T) {
	r, err := NewRun(Params{Event: EventPush, Branch: "refs/heads/main"}, "main")
	require.NoError(t, err)
	require.Equal(t, "main", r.Branch)
	require.True(t, r.IsRelease)
	require.NotEmpty(t, r.ID)
	require.False(t, r.FullLinkCheck())

	s, err := NewRun(Params{Event: EventSchedule, Branch: "main"}, "main")
	require.NoError(t, err)
	require.True(t, s.FullLinkCheck())
	require.NotEqual(t, r.ID, s.ID)

	_, err = NewRun(Params{Event: EventPush}, "main")
	require.Error(t, err)
	_, err = NewRun(Params{Event: "tag", Branch: "main"}, "main")
	require.Error(t, err)
}

func TestParseEventAliases(t *testing.T) {
	ev, err := ParseEvent("Manual")
	require.NoError(t, err)
	require.Equal(t, EventWorkflowDispatch, ev)
	ev, err = ParseEvent("cron")
	require.NoError(t, err)
	require.Equal(t, EventSchedule, ev)
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvPullRequest(t *testing.T) {
	p, err := FromEnv(envMap(map[string]string{
		EnvEventName: "pull_request",
		EnvRefName:   "42/merge",
		EnvHeadRef:   "feature/docs",
		EnvBaseRef:   "main",
		EnvSHA:       "abc",
	}))
	require.NoError(t, err)
	require.Equal(t, EventPullRequest, p.Event)
	require.Equal(t, "feature/docs", p.Branch)
	require.Equal(t, "main", p.BaseRef)
	require.Equal(t, "abc", p.HeadRef)

	r, err := NewRun(p, "main")
	require.NoError(t, err)
	require.False(t, r.IsRelease)
}

func TestFromEnvPrefersBaseSHA(t *testing.T) {
	p, err := FromEnv(envMap(map[string]string{
		EnvEventName: "pull_request",
		EnvHeadRef:   "feature",
		EnvBaseRef:   "main",
		EnvBaseSHA:   "deadbeef",
	}))
	require.NoError(t, err)
	require.Equal(t, "deadbeef", p.BaseRef)
}

func TestFromEnvPush(t *testing.T) {
	p, err := FromEnv(envMap(map[string]string{
		EnvEventName: "push",
		EnvRefName:   "main",
		EnvBeforeSHA: "0123",
	}))
	require.NoError(t, err)
	require.Equal(t, "main", p.Branch)
	require.Equal(t, "0123", p.BeforeRef)
	require.Empty(t, p.BaseRef)
}

func TestFromEnvMissing(t *testing.T) {
	_, err := FromEnv(envMap(nil))
	require.Error(t, err)
	_, err = FromEnv(envMap(map[string]string{EnvEventName: "push"}))
	require.Error(t, err)
}

func TestSecretsNeverLogged(t *testing.T) {
	sec := SecretsFromEnv(config.SecretsConfig{
		RepoTokenEnv: "GH_TOKEN",
		StatsKeyEnv:  "STATS_API_KEY",
		TraceKeyEnv:  "LANGCHAIN_API_KEY",
	}, envMap(map[string]string{"GH_TOKEN": "ghp_supersecret", "LANGCHAIN_API_KEY": "ls_secret"}))

	require.True(t, sec.RepoToken.Present())
	require.False(t, sec.StatsKey.Present())
	require.Equal(t, "GH_TOKEN=ghp_supersecret", sec.RepoToken.Env())
	require.Empty(t, sec.StatsKey.Env())
	require.Equal(t, redacted, sec.TraceKey.String())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("secrets", "secrets", sec, "token", sec.RepoToken)
	out := buf.String()
	require.False(t, strings.Contains(out, "ghp_supersecret"), out)
	require.False(t, strings.Contains(out, "ls_secret"), out)
	require.Contains(t, out, "repo_token=true")
}
