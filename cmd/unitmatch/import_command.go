package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import BUNDLE.json...",
		Short: "Import sessions and unit templates from JSON bundles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *store.DB) error {
				total := 0
				for _, path := range args {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					n, err := db.ImportBundle(cmd.Context(), f)
					f.Close()
					if err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					total += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d sessions\n", total)
				return nil
			})
		},
	}
}
