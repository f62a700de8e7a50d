package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/gamepulse/internal/dashboard"
	"github.com/rewired-gh/gamepulse/internal/gameinfo"
	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/metrics"
	"github.com/rewired-gh/gamepulse/internal/monitor"
	"github.com/rewired-gh/gamepulse/internal/server"
	"github.com/rewired-gh/gamepulse/internal/telegram"
	"github.com/rewired-gh/gamepulse/internal/trend"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard engine and its HTTP/WebSocket server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	store, backendCloser, err := openWatchlist(st)
	if err != nil {
		return err
	}
	defer func() {
		if err := backendCloser.Close(); err != nil {
			logger.Error("Failed to close watch-list backend: %v", err)
		}
	}()

	schedules, err := cfg.Panels.Schedules()
	if err != nil {
		return err
	}

	api := gameinfo.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		gameinfo.WithRetry(cfg.API.MaxRetries, cfg.API.RetryDelayBase))
	rec := metrics.New(nil)

	deps := dashboard.Deps{
		API:       api,
		Watchlist: store,
		Journal:   st,
		Metrics:   rec,
	}

	if cfg.Monitor.Enabled {
		deps.Monitor = monitor.New(st, monitor.Config{
			Threshold:          cfg.Monitor.Threshold,
			MinSamples:         cfg.Monitor.MinSamples,
			Ceiling:            cfg.Monitor.Ceiling,
			CheckpointInterval: cfg.Monitor.CheckpointInterval,
			Cooldown:           cfg.Monitor.Cooldown,
			TopK:               cfg.Monitor.TopK,
		})
		logger.Info("Surge monitor enabled (threshold: %.1f, min_samples: %d, top_k: %d)",
			cfg.Monitor.Threshold, cfg.Monitor.MinSamples, cfg.Monitor.TopK)
	}

	var tg *telegram.Client
	if cfg.Telegram.Enabled {
		tg, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return err
		}
		deps.Notifier = tg
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	dash := dashboard.New(deps, dashboard.Config{
		Schedules:    schedules,
		DiscardStale: cfg.Refresh.DiscardStale,
		LiveTimeout:  cfg.Aggregator.Timeout,
		LiveInterval: cfg.Aggregator.Interval,
		LiveWorkers:  cfg.Aggregator.MaxWorkers,
		Trend: trend.ChartConfig{
			DefaultDays: cfg.Trend.DefaultDays,
			AllowedDays: cfg.Trend.AllowedDays,
			Forecast:    cfg.Trend.Forecast,
			Timeout:     cfg.API.Timeout,
		},
	})
	dash.Start(ctx)
	defer dash.Close()

	if tg != nil {
		tg.ListenForCommands(ctx, dash)
	}

	hub := server.NewHub(dash, rec)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	srv := server.NewServer(server.NewHandler(dash, hub), rec,
		server.WithHost(cfg.Server.Host),
		server.WithPort(cfg.Server.Port),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
	srv.Start()

	logger.Info("GamePulse started against %s (%d panels, watch-list backend: %s)",
		api.BaseURL(), len(dashboard.PanelNames), cfg.Watchlist.Backend)

	<-ctx.Done()
	logger.Info("Shutdown signal received, cleaning up...")

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("%v", err)
	}
	<-hubDone
	logger.Info("Service stopped")
	return nil
}
