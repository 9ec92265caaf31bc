package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored tracking runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *store.DB) error {
				runs, err := db.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID.String(),
						r.CreatedAt.Format(time.RFC3339),
						r.Duration.Round(time.Millisecond).String(),
						strconv.Itoa(len(r.Sessions)),
						strconv.Itoa(len(r.Diagnostics)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Created", "Duration", "Sessions", "Diagnostics"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
