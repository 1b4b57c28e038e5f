package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// DiagnosticsCmd implements the 'diagnostics' command.
type DiagnosticsCmd struct {
	ScenarioFlags `embed:""`

	Duration time.Duration `short:"d" help:"How long to play the scenario before taking the snapshot" default:"5s"`
}

func (d *DiagnosticsCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = false

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := startScenario(ctx, g, cfg, d.ScenarioFlags)
	if err != nil {
		return err
	}
	run.wait(ctx, d.Duration)

	// The snapshot is taken while the session is still live.
	data, snapErr := run.app.Diagnostics().JSON()
	if err := run.stop(); err != nil {
		return err
	}
	if snapErr != nil {
		return ferrors.WrapError(snapErr, ferrors.CategoryInternal, "encode diagnostics snapshot").Build()
	}
	_, err = fmt.Fprintln(g.Out, string(data))
	return err
}
