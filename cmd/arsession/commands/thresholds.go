package commands

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/arsession/internal/config"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// ThresholdsCmd implements the 'thresholds' command.
type ThresholdsCmd struct {
	Env  string `help:"Show a single environment (dev, staging, prod)" placeholder:"ENV"`
	Lang string `help:"Locale used for number formatting" default:"en"`
}

func (c *ThresholdsCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}

	envs := config.Environments
	if c.Env != "" {
		env := config.NormalizeEnvironment(c.Env)
		if env == "" {
			return ferrors.ValidationError(fmt.Sprintf("unknown environment %q", c.Env)).Build()
		}
		envs = []config.Environment{env}
	}

	tag, err := language.Parse(c.Lang)
	if err != nil {
		return ferrors.ValidationError(fmt.Sprintf("unknown locale %q", c.Lang)).WithCause(err).Build()
	}
	return PrintThresholds(g.Out, message.NewPrinter(tag), cfg, envs)
}

type thresholdRow struct {
	name  string
	unit  string
	value func(config.Thresholds) float64
}

var thresholdRows = []thresholdRow{
	{"memory warning", "MB", func(t config.Thresholds) float64 { return t.MemoryWarningMB }},
	{"memory critical", "MB", func(t config.Thresholds) float64 { return t.MemoryCriticalMB }},
	{"cpu warning", "%", func(t config.Thresholds) float64 { return t.CPUWarningPercent }},
	{"cpu critical", "%", func(t config.Thresholds) float64 { return t.CPUCriticalPercent }},
	{"frame rate warning", "fps", func(t config.Thresholds) float64 { return t.FrameRateWarning }},
	{"frame rate critical", "fps", func(t config.Thresholds) float64 { return t.FrameRateCritical }},
	{"battery low", "%", func(t config.Thresholds) float64 { return t.BatteryLowLevel * 100 }},
	{"battery critical", "%", func(t config.Thresholds) float64 { return t.BatteryCritical * 100 }},
	{"network timeout", "ms", func(t config.Thresholds) float64 { return t.NetworkTimeoutMS }},
	{"render timeout", "ms", func(t config.Thresholds) float64 { return t.RenderTimeoutMS }},
	{"concurrency cap", "", func(t config.Thresholds) float64 { return float64(t.ConcurrencyCap) }},
	{"cache cap", "MB", func(t config.Thresholds) float64 { return float64(t.CacheCapMB) }},
}

// PrintThresholds writes one column per environment, with configured
// overrides applied. The active environment is marked with '*'.
func PrintThresholds(out io.Writer, p *message.Printer, cfg *config.Config, envs []config.Environment) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)

	fmt.Fprint(tw, "THRESHOLD\tUNIT\t")
	for _, env := range envs {
		name := string(env)
		if env == cfg.Environment {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw)

	for _, row := range thresholdRows {
		fmt.Fprintf(tw, "%s\t%s\t", row.name, row.unit)
		for _, env := range envs {
			fmt.Fprintf(tw, "%s\t", formatNumber(p, row.value(cfg.ThresholdsFor(env))))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func formatNumber(p *message.Printer, v float64) string {
	v = math.Round(v*100) / 100
	if v == math.Trunc(v) {
		return p.Sprintf("%d", int64(v))
	}
	return p.Sprintf("%.2f", v)
}
