package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Long: `Migrate brings the schema to --target-version. The default of -1 applies
every pending migration; 0 rolls every migration back.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg.Database()
			if err := database.Migrate(cfg, target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema migrated\n", cfg.Backend)
			return nil
		},
	}

	cmd.Flags().IntVar(&target, "target-version", -1, "schema version to migrate to, -1 for latest")

	return cmd
}
