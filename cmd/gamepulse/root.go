package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/gamepulse/internal/config"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/storage"
	"github.com/rewired-gh/gamepulse/internal/watchlist"
)

var (
	version = "dev"

	configPath string
	noColor    bool

	// cfg holds the validated configuration once PersistentPreRunE ran.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "gamepulse",
	Short:         "Live gaming dashboard engine",
	Long:          `GamePulse aggregates game popularity panels, tracks a watch-list of games and serves the dashboard over HTTP and WebSocket.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if noColor {
			color.NoColor = true
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		logger.Debug("Configuration loaded from %s", configPath)
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd, watchCmd, trendCmd, configCmd)
}

// openStorage opens the local journal database.
func openStorage() (*storage.Storage, error) {
	st, err := storage.New(cfg.Storage.KeepDays, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return st, nil
}

// openWatchlist builds the watch-list store on the configured backend. The returned closer releases backend resources other than st.
func openWatchlist(st *storage.Storage) (*watchlist.Store, io.Closer, error) {
	var (
		backend watchlist.Backend
		closer  io.Closer = nopCloser{}
	)
	switch cfg.Watchlist.Backend {
	case "sqlite":
		backend = st
	case "redis":
		rb, err := watchlist.NewRedisBackend(watchlist.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect watch-list backend: %w", err)
		}
		backend, closer = rb, rb
	default:
		backend = watchlist.NewFileBackend(cfg.Watchlist.Dir)
	}

	store := watchlist.New(backend, cfg.Watchlist.Key)
	logger.Info("Watch-list loaded from %s backend (%d entries)", cfg.Watchlist.Backend, store.Len())
	return store, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
