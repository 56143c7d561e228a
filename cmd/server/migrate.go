package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/papertrade/engine/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		switch {
		case cfg.Storage.DatabaseURL != "":
			pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer pool.Close()
			if err := store.NewPostgresStore(pool).Migrate(ctx); err != nil {
				return err
			}
			slog.Info("PostgreSQL schema applied")

		case cfg.Storage.SQLitePath != "":
			// Opening applies the schema.
			st, err := store.NewSQLiteStore(ctx, cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()
			slog.Info("SQLite schema applied", "path", cfg.Storage.SQLitePath)

		default:
			return errors.New("set DATABASE_URL or SQLITE_PATH to migrate")
		}
		return nil
	},
}
