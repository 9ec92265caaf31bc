package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/banshee-data/unitmatch/internal/sessions"
	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/spf13/cobra"
)

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var (
		groups  []string
		ceiling float64
	)

	cmd := &cobra.Command{
		Use:   "compare SESSION_A SESSION_B",
		Short: "Match the units of two sessions",
		Long: `Compare every channel group shared by two sessions and print the
optimal one-to-one assignment with its dissimilarity. Units of A left
unassigned are listed with a dash.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *store.DB) error {
				tr := tracking.NewTracker(sessions.NewCachedProvider(db.Provider()), tracking.DefaultTrackerConfig())
				pm, err := tr.CompareSessions(cmd.Context(), args[0], args[1], tracking.CompareOptions{
					ChannelGroups: groups,
					Ceiling:       ceiling,
				})
				if err != nil {
					return err
				}

				names := make([]string, 0, len(pm.Groups))
				for g := range pm.Groups {
					names = append(names, g)
				}
				slices.Sort(names)

				var rows [][]string
				for _, g := range names {
					gm := pm.Groups[g]
					for _, ua := range gm.UnitsA {
						ub, ok := gm.HungarianAB[ua]
						if !ok || ub == tracking.NoMatch {
							rows = append(rows, []string{g, strconv.Itoa(ua), "-", "-", strconv.Itoa(len(gm.PossibleAB[ua]))})
							continue
						}
						score, _ := gm.Score(ua, ub)
						rows = append(rows, []string{
							g, strconv.Itoa(ua), strconv.Itoa(ub),
							strconv.FormatFloat(score, 'f', 4, 64),
							strconv.Itoa(len(gm.PossibleAB[ua])),
						})
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Group", args[0], args[1], "Dissimilarity", "Candidates"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				for _, d := range pm.Diagnostics {
					fmt.Fprintf(out, "skipped: %v\n", d)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&groups, "group", nil, "Channel groups to compare (default: all groups of SESSION_A)")
	cmd.Flags().Float64Var(&ceiling, "ceiling", 0, "Reject assignments at or above this dissimilarity (0 = unbounded)")
	return cmd
}
