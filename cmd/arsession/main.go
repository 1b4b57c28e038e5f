package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/arsession/cmd/arsession/commands"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Out: os.Stdout, LogLevel: new(slog.LevelVar)}

	parser := kong.Parse(cli,
		kong.Name("arsession"),
		kong.Description("AR session lifecycle controller and adaptive performance governor."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		commands.Vars(),
		kong.Bind(global),
	)

	if err := parser.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
