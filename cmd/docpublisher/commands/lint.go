package commands

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/lint"
)

// LintCmd implements the 'lint' command. Errors exit with status 2.
type LintCmd struct {
	Path    string   `arg:"" optional:"" help:"File or directory to lint (default: repository.docs_dir)"`
	Format  string   `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
	Quiet   bool     `short:"q" help:"Only report errors"`
	Disable []string `help:"Rule names to skip"`
}

func (l *LintCmd) Run(g *Global, root *CLI) error {
	path := l.Path
	if path == "" {
		cfg, err := loadConfig(root)
		if err != nil {
			return err
		}
		path = cfg.Resolve(cfg.Repository.DocsDir)
	}

	result, err := lint.New(lint.Options{Quiet: l.Quiet, Disabled: l.Disable}).LintPath(path)
	if err != nil {
		return ferrors.FileSystemError("linting failed").WithCause(err).WithContext("path", path).Build()
	}
	if err := lint.NewFormatter(l.Format).Format(g.out(), result); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	if result.HasErrors() {
		return ferrors.ValidationError(fmt.Sprintf("lint found %d errors", result.ErrorCount())).
			WithContext("path", path).
			Build()
	}
	return nil
}
