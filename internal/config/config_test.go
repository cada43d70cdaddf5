package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	require.Equal(t, "main", cfg.Repository.DefaultBranch)
	require.Equal(t, "docs/docs", cfg.Repository.DocsDir)
	require.Equal(t, "**/*.ipynb", cfg.Repository.NotebookGlob)
	require.Len(t, cfg.Install.Sets, 2)
	require.Equal(t, DefaultStatsEnv, cfg.Build.StatsEnv)
	require.Contains(t, cfg.Build.Placeholders, "OPENAI_API_KEY")
	require.Contains(t, cfg.Build.Placeholders, "ANTHROPIC_API_KEY")
	require.Equal(t, LinkCheckBuiltin, cfg.LinkCheck.Backend)
	require.Equal(t, 5, cfg.LinkCheck.NoMatchExitCode)
	require.Equal(t, []string{"tutorials/storm/storm.ipynb"}, cfg.LinkCheck.ExcludedPages)
	require.Equal(t, PublishDirectory, cfg.Publish.Target)
	require.Equal(t, "pages", cfg.Publish.Group)
	require.Equal(t, LockSQLite, cfg.Publish.Lock.Backend)
	require.Equal(t, filepath.Join(".docpublisher", "locks.db"), cfg.Publish.Lock.Path)
	require.Equal(t, 10*time.Minute, cfg.Pipeline.TimeoutDuration())
	require.Equal(t, RetryBackoffLinear, cfg.Retry.Backoff)
	require.Equal(t, "main", cfg.Daemon.Branch)
	require.Nil(t, cfg.Install.Private)
}

func TestParseNormalizesEnums(t *testing.T) {
	cfg, err := Parse([]byte(`
linkcheck:
  backend: COMMAND
  command:
    run: [docpublisher, linkcheck]
  exclude_flag: --ignore-url
publish:
  target: git-branch
  lock:
    backend: Memory
retry:
  backoff: Exponential
`))
	require.NoError(t, err)
	require.Equal(t, LinkCheckCommand, cfg.LinkCheck.Backend)
	require.Equal(t, PublishGit, cfg.Publish.Target)
	require.Equal(t, LockMemory, cfg.Publish.Lock.Backend)
	require.Equal(t, RetryBackoffExponential, cfg.Retry.Backoff)
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"bad backend":       "linkcheck:\n  backend: curl\n",
		"command backend":   "linkcheck:\n  backend: command\n",
		"command no flag":   "linkcheck:\n  backend: command\n  command:\n    run: [check]\n",
		"bad exclude regex": "linkcheck:\n  exclude:\n    - pattern: '(['\n",
		"bad sentinel":      "linkcheck:\n  no_match_exit_code: 300\n",
		"bad target":        "publish:\n  target: s3\n",
		"git on default":    "publish:\n  target: git\n  git:\n    branch: main\n",
		"bad duration":      "pipeline:\n  timeout: soon\n",
		"bad glob":          "repository:\n  notebook_glob: '[a'\n",
		"dup install set":   "install:\n  sets:\n    - {name: js, lockfile: a, command: {run: [x]}}\n    - {name: js, lockfile: b, command: {run: [y]}}\n",
		"private no cred":   "install:\n  private:\n    command:\n      run: [x]\n",
		"nats without url":  "linkcheck:\n  nats:\n    bucket: b\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadExpandsEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCPUB_TEST_BRANCH=trunk\nDOCPUB_TEST_SITE=from-dotenv\n"), 0o600))
	t.Setenv("DOCPUB_TEST_SITE", "from-process")

	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("repository:\n  default_branch: ${DOCPUB_TEST_BRANCH}\n  site_dir: ${DOCPUB_TEST_SITE}\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DOCPUB_TEST_BRANCH") })

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "trunk", cfg.Repository.DefaultBranch)
	require.Equal(t, "from-process", cfg.Repository.SiteDir, "process env must win over .env")
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Repository.DefaultBranch)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "custom.yaml"))
	require.Error(t, err)
}

func TestInitWritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Install.Private)
	require.Equal(t, "GH_TOKEN", cfg.Install.Private.CredentialEnv)
	require.Len(t, cfg.LinkCheck.Exclude, 1)
}

func TestResolve(t *testing.T) {
	cfg := &Config{Repository: RepositoryConfig{Path: "/repo"}}
	require.Equal(t, filepath.Join("/repo", "docs"), cfg.Resolve("docs"))
	require.Equal(t, "/abs", cfg.Resolve("/abs"))
	require.Empty(t, cfg.Resolve(""))
}
