package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// SimulateCmd implements the 'simulate' command.
type SimulateCmd struct {
	ScenarioFlags `embed:""`

	Duration    time.Duration `short:"d" help:"How long to run; 0 runs until interrupted" default:"30s"`
	MetricsAddr string        `help:"Serve Prometheus metrics on this address (e.g. :9464)"`
	Watch       bool          `help:"Reload thresholds and log level when the config file changes"`
}

func (s *SimulateCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = s.MetricsAddr != ""
	cfg.Metrics.ListenAddr = s.MetricsAddr

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := startScenario(ctx, g, cfg, s.ScenarioFlags)
	if err != nil {
		return err
	}

	if s.Watch {
		if err := run.app.WatchConfig(ctx, root.Config); err != nil {
			_ = run.stop()
			return ferrors.WrapError(err, ferrors.CategoryConfig, "watch configuration").
				WithContext("path", root.Config).
				Build()
		}
		slog.Info("Watching configuration", slog.String("path", root.Config))
	}

	run.wait(ctx, s.Duration)
	if ctx.Err() != nil {
		slog.Info("Shutdown signal received, stopping simulation")
	}

	stopErr := run.stop()
	if err := run.printSummary(g.Out); err != nil {
		return err
	}
	return stopErr
}
