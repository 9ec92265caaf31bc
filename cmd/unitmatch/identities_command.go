package main

import (
	"fmt"

	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newIdentitiesCommand(ctx *commandContext) *cobra.Command {
	var runFlag string

	cmd := &cobra.Command{
		Use:   "identities",
		Short: "Show the units identified by a tracking run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := uuid.Nil
			if runFlag != "" {
				id, err := uuid.Parse(runFlag)
				if err != nil {
					return fmt.Errorf("invalid run id %q: %w", runFlag, err)
				}
				runID = id
			}
			return ctx.withDB(func(db *store.DB) error {
				ids, err := db.ListIdentities(cmd.Context(), runID)
				if err != nil {
					return err
				}
				printIdentities(cmd.OutOrStdout(), ids)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runFlag, "run", "", "Run id (default: latest run)")
	return cmd
}
