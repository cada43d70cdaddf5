package commands

import (
	"fmt"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return ferrors.ConfigError("initialization failed").WithCause(err).Build()
	}
	_, err := fmt.Fprintf(g.out(), "Wrote example configuration to %s\n", root.Config)
	return err
}
