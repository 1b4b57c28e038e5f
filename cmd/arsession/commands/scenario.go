package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/arsession/internal/app"
	"git.home.luguber.info/inful/arsession/internal/config"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/performance"
	"git.home.luguber.info/inful/arsession/internal/simengine"
)

const (
	procProfile     = "proc"
	stopGracePeriod = 10 * time.Second
)

// Vars are the help interpolation variables the CLI is parsed with.
func Vars() kong.Vars {
	return kong.Vars{
		"scenarios":    strings.Join(simengine.Names(), ", "),
		"perfProfiles": strings.Join(append(performance.ProfileNames(), procProfile), ", "),
	}
}

// ScenarioFlags select what a simulated run plays back.
type ScenarioFlags struct {
	Scenario string `short:"s" help:"Scenario to play (${scenarios})" default:"healthy"`
	Perf     string `short:"p" help:"Performance profile (${perfProfiles})" default:"steady"`
	Device   string `help:"Device profile override (full, lidar-less, basic, unsupported)"`
	Env      string `help:"Environment override (dev, staging, prod)"`
	Store    string `help:"SQLite analytics store path; enables analytics" type:"path"`
}

// apply folds the flags into cfg and returns the scenario to play.
func (f ScenarioFlags) apply(cfg *config.Config) (simengine.Scenario, error) {
	sc, err := simengine.Lookup(f.Scenario)
	if err != nil {
		return simengine.Scenario{}, ferrors.ValidationError(err.Error()).Build()
	}

	cfg.Device.Profile = sc.Profile
	if f.Device != "" {
		cfg.Device.Profile = f.Device
	}
	if f.Env != "" {
		env := config.NormalizeEnvironment(f.Env)
		if env == "" {
			return simengine.Scenario{}, ferrors.ValidationError(fmt.Sprintf("unknown environment %q", f.Env)).Build()
		}
		cfg.Environment = env
	}
	if f.Store != "" {
		cfg.Analytics.Enabled = true
		cfg.Analytics.StorePath = f.Store
	}
	return sc, nil
}

func (f ScenarioFlags) source() (performance.Source, error) {
	if f.Perf == procProfile {
		src, err := performance.NewProcSource(nil)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryPerformance, "host metrics unavailable").Build()
		}
		return src, nil
	}
	src, err := performance.ScriptedProfile(f.Perf)
	if err != nil {
		return nil, ferrors.ValidationError(err.Error()).Build()
	}
	return src, nil
}

// scenarioRun is a started application playing one scenario.
type scenarioRun struct {
	name    string
	app     *app.App
	engine  *simengine.Engine
	started chan error
}

func startScenario(ctx context.Context, g *Global, cfg *config.Config, flags ScenarioFlags) (*scenarioRun, error) {
	sc, err := flags.apply(cfg)
	if err != nil {
		return nil, err
	}
	source, err := flags.source()
	if err != nil {
		return nil, err
	}

	engine := simengine.New(sc)
	a, err := app.New(ctx, cfg, engine, source, app.WithLogLevel(g.LogLevel))
	if err != nil {
		engine.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "assemble application").Build()
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.WithoutCancel(ctx))
		engine.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "start application").Build()
	}

	slog.Info("Playing scenario", slog.String("scenario", sc.Name), slog.String("description", sc.Description),
		slog.String("device_profile", cfg.Device.Profile), slog.String("perf_profile", flags.Perf))

	r := &scenarioRun{name: sc.Name, app: a, engine: engine, started: make(chan error, 1)}
	go func() { r.started <- a.StartSession(ctx) }()
	return r, nil
}

// wait lets the scenario play for d, or until ctx ends when d is zero.
func (r *scenarioRun) wait(ctx context.Context, d time.Duration) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	started := r.started
	for {
		select {
		case err := <-started:
			started = nil
			if err != nil {
				slog.Warn("Session start did not confirm", logfields.Error(err))
				continue
			}
			slog.Info("Session confirmed", logfields.State(string(r.app.Controller().State())))
		case <-ctx.Done():
			return
		}
	}
}

func (r *scenarioRun) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
	defer cancel()
	err := r.app.Stop(ctx)
	r.engine.Close()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "stop application").Build()
	}
	return nil
}

// printSummary writes the final session and governor state.
func (r *scenarioRun) printSummary(out io.Writer) error {
	snap := r.app.Controller().Snapshot()
	m := snap.Metrics
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "scenario\t%s\n", r.name)
	fmt.Fprintf(tw, "session\t%s\n", m.SessionID)
	fmt.Fprintf(tw, "state\t%s\n", snap.State)
	fmt.Fprintf(tw, "quality\t%s\n", orDash(snap.Quality))
	fmt.Fprintf(tw, "planes\t%d\n", len(snap.Planes))
	fmt.Fprintf(tw, "runs\t%d\n", m.TotalRuns)
	fmt.Fprintf(tw, "failures\t%d\n", m.TotalFailures)
	fmt.Fprintf(tw, "retries\t%d\n", m.TotalRetries)
	if m.TimeToFirstConfirmation > 0 {
		fmt.Fprintf(tw, "time to confirm\t%s\n", m.TimeToFirstConfirmation.Round(time.Millisecond))
	}
	fallback := "-"
	if snap.Fallback.Active {
		fallback = snap.Fallback.Reason
	}
	fmt.Fprintf(tw, "fallback\t%s\n", fallback)
	fmt.Fprintf(tw, "performance\t%s\n", r.app.Monitor().State())
	fmt.Fprintf(tw, "optimizations\t%s\n", orDash(strings.Join(snap.Optimizations, ", ")))
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
