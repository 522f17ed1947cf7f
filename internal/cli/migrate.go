package cli

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/quizpath/quizpath/internal/config"
	"github.com/quizpath/quizpath/internal/server"
	"github.com/quizpath/quizpath/internal/store/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, *configPath)
		},
	}
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	var c server.Config
	if err := config.Load(configPath, &c); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if c.Postgres.Addr == "" {
		return fmt.Errorf("postgres not configured")
	}

	ctx := cmd.Context()

	db, err := pgxpool.New(ctx, fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("migrate: schema applied")
	return nil
}
