package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/unitmatch/internal/config"
	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/report"
	"github.com/banshee-data/unitmatch/internal/security"
	"github.com/banshee-data/unitmatch/internal/sessions"
	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/spf13/cobra"
)

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var (
		configPath string
		reportDir  string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "track [SESSION...]",
		Short: "Track units across sessions and store the identities",
		Long: `Match every pair of sessions, join the matches into one graph per
channel group, prune weak edges and extract one identity per connected
component. The run is saved and can be listed with "unitmatch runs".

Examples:
  unitmatch track d1 d2 d3
  unitmatch track --all --config run.json --report ./reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.EmptyTrackingConfig()
			if configPath != "" {
				loaded, err := config.LoadTrackingConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if reportDir != "" {
				if err := security.ValidateOutputPath(reportDir); err != nil {
					return fmt.Errorf("report directory: %w", err)
				}
				if err := os.MkdirAll(reportDir, 0o755); err != nil {
					return err
				}
			}

			return ctx.withDB(func(db *store.DB) error {
				ids := args
				if all {
					stored, err := db.ListSessions(cmd.Context())
					if err != nil {
						return err
					}
					ids = make([]string, 0, len(stored))
					for _, s := range stored {
						ids = append(ids, s.ID)
					}
				}
				if len(ids) < 2 {
					return fmt.Errorf("need at least two sessions, got %d", len(ids))
				}

				provider := sessions.NewCachedProvider(db.Provider())
				tr := tracking.NewTracker(provider, tracking.TrackerConfig{Workers: cfg.GetWorkers()})

				started := time.Now()
				res, err := tr.Track(cmd.Context(), ids, tracking.TrackOptions{
					ChannelGroups: cfg.GetChannelGroups(),
					Ceiling:       cfg.GetMaxDissimilarity(),
				})
				if err != nil {
					return err
				}
				hits, misses := provider.Stats()
				monitoring.Logf("[tracking] template cache: %d hits, %d loads", hits, misses)

				candidates := res.Clone()
				if err := applyPruning(res, cfg); err != nil {
					return err
				}
				identities, err := res.Identify()
				if err != nil {
					return err
				}

				run, err := db.SaveRun(cmd.Context(), store.RunInput{
					StartedAt:  started,
					Config:     cfg,
					Result:     res,
					Identities: identities,
					Candidates: candidates.Graphs,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "run %s: %d sessions, %d diagnostics\n", run.ID, len(res.Sessions), len(res.Diagnostics))
				var flat []tracking.IdentifiedUnit
				for _, g := range res.ChannelGroups() {
					flat = append(flat, identities[g]...)
				}
				printIdentities(out, flat)

				if reportDir != "" {
					return writeReports(reportDir, run, res, candidates, identities, cfg.GetPruneDissimilarity())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Tracking config JSON (default: built-in defaults)")
	cmd.Flags().StringVar(&reportDir, "report", "", "Directory to write the weight histogram and identity graph into")
	cmd.Flags().BoolVar(&all, "all", false, "Track every stored session")
	return cmd
}

// applyPruning prunes by weight, then by the optional time and depth limits,
// then resolves duplicate sessions when configured.
func applyPruning(res *tracking.Result, cfg *config.TrackingConfig) error {
	n, err := res.Prune(tracking.PruneWeight, cfg.GetPruneDissimilarity())
	if err != nil {
		return err
	}
	monitoring.Logf("[tracking] pruned %d edges above dissimilarity %g", n, cfg.GetPruneDissimilarity())

	if d, ok := cfg.GetMaxTimeDelta(); ok {
		n, err := res.Prune(tracking.PruneTimeDelta, d.Seconds())
		if err != nil {
			return err
		}
		monitoring.Logf("[tracking] pruned %d edges spanning more than %s", n, d)
	}
	if d, ok := cfg.GetMaxDepthDelta(); ok {
		n, err := res.Prune(tracking.PruneDepthDelta, d)
		if err != nil {
			return err
		}
		monitoring.Logf("[tracking] pruned %d edges with depth change above %gum", n, d)
	}
	if cfg.GetResolveDuplicates() {
		n := res.ResolveDuplicates()
		monitoring.Logf("[tracking] removed %d edges to resolve duplicate sessions", n)
	}
	return nil
}

// writeReports plots the weights of every candidate edge against the prune
// threshold and draws the identity graph of the pruned result.
func writeReports(dir string, run *store.Run, res, candidates *tracking.Result, ids map[string][]tracking.IdentifiedUnit, threshold float64) error {
	png, err := security.OutputFile(dir, "weights-"+run.ID.String()+".png")
	if err != nil {
		return err
	}
	if err := report.SaveWeightHistogram(png, candidates.Graphs, threshold); err != nil && !errors.Is(err, report.ErrNoEdges) {
		return err
	}

	html, err := security.OutputFile(dir, "identities-"+run.ID.String()+".html")
	if err != nil {
		return err
	}
	return report.SaveIdentityGraph(html, res.Graphs, ids)
}

func printIdentities(w io.Writer, ids []tracking.IdentifiedUnit) {
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		var units []string
		for _, s := range id.Sessions() {
			units = append(units, fmt.Sprintf("%s:%d", s, id.Units[s]))
		}
		rows = append(rows, []string{
			id.ID.String()[:8],
			id.ChannelGroup,
			strconv.Itoa(len(id.Units)),
			strings.Join(units, " "),
			strconv.FormatFloat(id.AverageDissimilarity, 'f', 4, 64),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Identity", "Group", "Sessions", "Units", "Mean dissimilarity"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
}
