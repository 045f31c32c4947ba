package cmd

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/infra/adapters/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <command> [args]",
	Short: "Apply database migrations",
	Long:  "Runs a goose command (up, down, status, ...) against the embedded migration set.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		goose.SetBaseFS(migrations.MigrationsFS)

		db, err := goose.OpenDBWithDriver("pgx", cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := goose.RunContext(cmd.Context(), args[0], db, ".", args[1:]...); err != nil {
			return fmt.Errorf("run migration %q: %w", args[0], err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
