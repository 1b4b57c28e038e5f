package commands

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/arsession/internal/config"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/observability"
)

// Global carries state shared by every subcommand.
type Global struct {
	Out      io.Writer
	LogLevel *slog.LevelVar
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"arsession.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init        InitCmd        `cmd:"" help:"Write an example configuration file"`
	Thresholds  ThresholdsCmd  `cmd:"" help:"Print the performance thresholds per environment"`
	Simulate    SimulateCmd    `cmd:"" help:"Run a simulated AR session scenario"`
	Diagnostics DiagnosticsCmd `cmd:"" help:"Run a scenario and print the diagnostics snapshot"`
	History     HistoryCmd     `cmd:"" help:"List session summaries from the analytics store"`
}

// AfterApply runs after flag parsing and installs a text logger; commands
// that load a configuration switch to its format and level.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	if g.LogLevel == nil {
		g.LogLevel = new(slog.LevelVar)
	}
	if g.Out == nil {
		g.Out = os.Stdout
	}
	if c.Verbose {
		g.LogLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, g.LogLevel, "text"))
	return nil
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist, and applies its logging section.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		if _, statErr := os.Stat(c.Config); !errors.Is(statErr, os.ErrNotExist) {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "load configuration").
				WithContext("path", c.Config).
				Build()
		}
		slog.Debug("Configuration file not found, using defaults", slog.String("path", c.Config))
		cfg = config.Default()
	}

	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.LogLevel.Set(level)
	slog.SetDefault(observability.NewLogger(os.Stderr, g.LogLevel, string(cfg.Logging.Format)))
	return cfg, nil
}
