package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/eventstore"
	ferrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Store string `help:"SQLite analytics store path (defaults to analytics.store_path)" type:"path"`
	Limit int    `short:"n" help:"Maximum number of sessions to list" default:"20"`
	JSON  bool   `help:"Print summaries as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	path := h.Store
	if path == "" {
		path = cfg.Analytics.StorePath
	}
	if path == "" {
		return ferrors.ValidationError("no analytics store configured (set analytics.store_path or --store)").Build()
	}

	summaries, err := LoadHistory(context.Background(), path)
	if err != nil {
		return err
	}
	if h.Limit > 0 && len(summaries) > h.Limit {
		summaries = summaries[:h.Limit]
	}
	if h.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	return PrintHistory(g.Out, summaries)
}

// LoadHistory rebuilds the session summaries stored at path, newest first.
func LoadHistory(ctx context.Context, path string) ([]eventstore.SessionSummary, error) {
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryAnalytics, "open analytics store").
			WithContext("path", path).
			Build()
	}
	defer func() { _ = store.Close() }()

	projection := eventstore.NewSessionHistoryProjection(store, config.DefaultHistoryCapacity)
	if err := projection.Rebuild(ctx); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryAnalytics, "rebuild session history").Build()
	}
	return projection.GetHistory(), nil
}

// PrintHistory renders summaries as a table.
func PrintHistory(out io.Writer, summaries []eventstore.SessionSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(out, "no sessions recorded")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tSTATE\tRUNS\tFAILURES\tRETRIES\tQUALITY\tFALLBACK")
	for _, s := range summaries {
		fallback := "-"
		if s.FallbackActive {
			fallback = s.FallbackReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.SessionID,
			s.StartedAt.Local().Format(time.DateTime),
			orDash(s.LastState),
			s.Runs,
			s.Failures,
			s.Retries,
			orDash(s.LastQuality),
			fallback,
		)
	}
	return tw.Flush()
}
