// Package commands implements the docpublisher subcommands.
package commands

import (
	"io"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docpublisher/internal/logging"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
)

// Global carries process-scoped dependencies into command Run methods.
type Global struct {
	Out    io.Writer
	Getenv func(string) string
	// Runner executes child processes; nil uses the host.
	Runner runner.Runner
}

// DefaultGlobal wires the real process environment.
func DefaultGlobal() *Global {
	return &Global{Out: os.Stdout, Getenv: os.Getenv}
}

func (g *Global) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Global) getenv(key string) string {
	if g.Getenv == nil {
		return os.Getenv(key)
	}
	return g.Getenv(key)
}

// CLI definition and global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"docpublisher.yaml" env:"DOCPUBLISHER_CONFIG"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log format (text, json, tint); defaults to logging.format from the config"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run       RunCmd       `cmd:"" help:"Run the documentation pipeline for one trigger"`
	Changes   ChangesCmd   `cmd:"" help:"Print the documentation files changed by a trigger"`
	Lint      LintCmd      `cmd:"" help:"Lint the documentation sources"`
	Linkcheck LinkcheckCmd `cmd:"" name:"linkcheck" help:"Check links of the built site"`
	History   HistoryCmd   `cmd:"" help:"Show recent runs from the event store"`
	Daemon    DaemonCmd    `cmd:"" help:"Run scheduled full link-check runs until interrupted"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
}

// AfterApply installs the log handler from the flags. The config file may
// refine it once loaded.
func (c *CLI) AfterApply() error {
	return logging.Initialize(logging.Options{Format: c.LogFormat, Verbose: c.Verbose})
}
