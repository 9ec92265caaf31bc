package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *store.DB) error {
				sessions, err := db.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.ID,
						s.RecordedAt.Format(time.RFC3339),
						s.Subject,
						strconv.Itoa(s.ChannelGroups),
						strconv.Itoa(s.Units),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Session", "Recorded", "Subject", "Groups", "Units"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
