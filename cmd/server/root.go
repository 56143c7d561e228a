package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/papertrade/engine/internal/config"
	"github.com/papertrade/engine/internal/logging"
	"github.com/papertrade/engine/internal/oracle"
	"github.com/papertrade/engine/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "Paper-trading game engine",
	Long: `papertrade runs time-boxed stock trading games.

Players register into a game, receive its starting cash, and buy or sell
equities at live Alpaca quotes until the game window closes.`,
	SilenceUsage: true,
	// Bare invocation serves.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (environment variables override it)")
	rootCmd.AddCommand(serveCmd, migrateCmd, quoteCmd)
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level)
	return cfg, nil
}

// openStore picks the backend: PostgreSQL (optionally behind Redis), then
// SQLite, then memory. The returned cleanup funcs run in reverse order.
func openStore(ctx context.Context, cfg config.Storage) (store.Store, []func(), error) {
	var cleanup []func()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		var st store.Store = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				runCleanup(cleanup)
				return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
		return st, cleanup, nil

	case cfg.SQLitePath != "":
		st, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { st.Close() })
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
		return st, cleanup, nil

	default:
		slog.Warn("no DATABASE_URL or SQLITE_PATH, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, nil
	}
}

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// newOracle builds the configured price source.
func newOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.OracleSource() {
	case config.OracleAlpaca:
		a := oracle.NewAlpacaOracle(oracle.AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.Feed,
			Timeout:   cfg.Alpaca.Timeout,
		})
		slog.Info("using Alpaca price oracle", "feed", cfg.Alpaca.Feed, "max_attempts", cfg.Alpaca.MaxAttempts)
		return oracle.NewRetrying(a, cfg.Alpaca.MaxAttempts, cfg.Alpaca.RetryDelay), nil

	case config.OracleStatic:
		prices, err := cfg.StaticPrices()
		if err != nil {
			return nil, err
		}
		s := oracle.NewStatic(prices)
		slog.Warn("using static price oracle", "symbols", slices.Sorted(maps.Keys(s.Prices())))
		return s, nil

	default:
		return nil, errors.New("no oracle configured")
	}
}
