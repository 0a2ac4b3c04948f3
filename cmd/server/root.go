package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/config"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
)

// cli carries state shared by the subcommands once the root command has
// loaded configuration.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *monitoring.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "free-rider-o-meter",
		Short: "Contribution analysis and free-rider detection for project groups",
		Long: `free-rider-o-meter scores every member of a project group from their
repository activity and peer evaluations, and flags the members whose
composite score falls below the configured threshold.

Commands:
  serve     Run the HTTP API
  run       Analyze one group and print its report
  migrate   Apply database schema migrations`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = monitoring.NewLogger(cfg.Log.Level)
			slog.SetDefault(c.logger.Logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default is ./.freerider.yaml or $HOME/.freerider.yaml)")
	flags.String("port", "", "HTTP listen port")
	flags.String("data-dir", "", "directory holding the SQLite database")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("db-backend", "", "database backend: sqlite, postgres or mysql")
	flags.String("db-dsn", "", "database connection string")

	root.AddCommand(newServeCmd(c))
	root.AddCommand(newRunCmd(c))
	root.AddCommand(newMigrateCmd(c))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "free-rider-o-meter %s (commit: %s)\n", version, commit)
		},
	}
}
