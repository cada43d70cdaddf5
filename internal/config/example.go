package config

const exampleConfig = `# docpublisher configuration
repository:
  path: .
  default_branch: main
  docs_dir: docs/docs
  site_dir: docs/site
  notebook_glob: "**/*.ipynb"
  work_dir: .docpublisher

secrets:
  repo_token_env: GH_TOKEN
  stats_key_env: STATS_API_KEY
  trace_key_env: LANGCHAIN_API_KEY

install:
  sets:
    - name: js
      lockfile: yarn.lock
      command:
        run: [yarn, install, --frozen-lockfile]
    - name: python
      lockfile: uv.lock
      command:
        run: [uv, sync, --all-groups]
  # Installed only when the credential is present.
  private:
    credential_env: GH_TOKEN
    command:
      run: [./scripts/install-insiders.sh]

steps:
  test:
    run: [make, test]
  # Leave lint empty to use the built-in documentation linter.
  lint: {}

build:
  command:
    run: [mkdocs, build, --strict]
    dir: docs
  stats_env: DOWNLOAD_STATS
  placeholders:
    OPENAI_API_KEY: sk-placeholder
    ANTHROPIC_API_KEY: sk-placeholder

linkcheck:
  backend: builtin
  no_match_exit_code: 5
  excluded_pages:
    - tutorials/storm/storm.ipynb
  exclude:
    - pattern: '^https://internal\.example\.com/'
      reason: VPN only
  # With backend: command, each exclude rule is passed to the checker,
  # e.g. --check-links-ignore={pattern}.
  # exclude_flag: --check-links-ignore
  concurrency: 8
  timeout: 15s
  # Path prefix the site is served under, stripped from internal links.
  # site_base_path: /docs/
  # nats:
  #   url: nats://localhost:4222

publish:
  target: directory
  group: pages
  lock:
    backend: sqlite
    ttl: 30m
    poll: 2s
  directory:
    path: public
  git:
    remote: origin
    branch: gh-pages

pipeline:
  timeout: 10m

retry:
  backoff: linear
  initial: 1s
  max: 30s
  max_retries: 2

eventstore:
  path: .docpublisher/history.db

metrics:
  enabled: false
  # pushgateway_url: http://localhost:9091
  # Served by the daemon command.
  # listen: ":9464"

daemon:
  schedule: "0 6 * * *"
  branch: main
  debounce: 2s

logging:
  format: text
  level: info
`
