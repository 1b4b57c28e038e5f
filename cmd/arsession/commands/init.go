package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"git.home.luguber.info/inful/arsession/internal/config"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	// If the user specified an output directory, place the config there as "arsession.yaml".
	if i.Output != "" {
		return RunInit(g.Out, filepath.Join(i.Output, "arsession.yaml"), i.Force)
	}
	return RunInit(g.Out, root.Config, i.Force)
}

func RunInit(out io.Writer, configPath string, force bool) error {
	fmt.Fprintf(out, "Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "initialize configuration").
			WithContext("path", configPath).
			Build()
	}
	fmt.Fprintln(out, "initialized successfully")
	return nil
}
