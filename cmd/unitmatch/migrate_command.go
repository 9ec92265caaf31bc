package main

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status|force VERSION]",
		Short: "Manage the database schema",
		Long: `Apply or inspect schema migrations. Other commands migrate up
automatically; use this to roll back or recover from a dirty state.

Examples:
  unitmatch migrate            # same as "migrate up"
  unitmatch migrate status
  unitmatch migrate force 1`,
		Args:      cobra.RangeArgs(0, 2),
		ValidArgs: []string{"up", "down", "status", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) > 0 {
				action = args[0]
			}

			db, err := store.Open(ctx.dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			switch action {
			case "up":
				if err := db.MigrateUp(); err != nil {
					return err
				}
			case "down":
				if err := db.MigrateDown(); err != nil {
					return err
				}
			case "status":
			case "force":
				if len(args) < 2 {
					return fmt.Errorf("usage: unitmatch migrate force VERSION")
				}
				v, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[1], err)
				}
				if err := db.MigrateForce(v); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}

			version, dirty, err := db.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "schema version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	}
	return cmd
}
