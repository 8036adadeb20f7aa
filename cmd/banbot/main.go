package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkuznetsov/banword-bot/internal/ban"
	"github.com/mkuznetsov/banword-bot/internal/bot"
	"github.com/mkuznetsov/banword-bot/internal/clock"
	"github.com/mkuznetsov/banword-bot/internal/config"
	"github.com/mkuznetsov/banword-bot/internal/economy"
	"github.com/mkuznetsov/banword-bot/internal/health"
	"github.com/mkuznetsov/banword-bot/internal/leader"
	"github.com/mkuznetsov/banword-bot/internal/lottery"
	"github.com/mkuznetsov/banword-bot/internal/store"
	"github.com/mkuznetsov/banword-bot/internal/telemetry"
	"github.com/mkuznetsov/banword-bot/internal/words"

	// Register store drivers so they are available via store.Open.
	_ "github.com/mkuznetsov/banword-bot/internal/store/dbsql"
	_ "github.com/mkuznetsov/banword-bot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or dbsql).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Warm the banword cache before any message is moderated.
	cache := words.NewCache(repos.Words, repos.Players, logger, tp.TracerProvider, clk)
	if err := cache.ReloadAll(ctx); err != nil {
		return fmt.Errorf("warming banword cache: %w", err)
	}

	// The Telegram session is opened before the managers so the notifier
	// can broadcast through it.
	api, err := bot.NewAPI(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	notifier := bot.NewNotifier(api, repos.Chats, logger)

	// Initialize managers.
	eco := economy.NewManager(repos.Players, repos.Events, cache, cfg.Ban, logger, tp.TracerProvider)
	bans := ban.NewManager(repos.Players, repos.Bans, repos.Events, notifier, ban.NewPolicy(cfg.Ban), logger, tp.TracerProvider, clk)
	rotator := lottery.NewRotator(repos.Words, cache, repos.Events, notifier, cfg.Lottery, logger, tp.TracerProvider, clk)

	// Setup health checks. Readiness degrades when the watch-lists have not
	// been reloaded for a full day.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
		health.WatchlistChecker(clk, cache.LastReload, 24*time.Hour),
	)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// startBot is the core work that only the leader should run.
	startBot := func(ctx context.Context) error {
		tgBot := bot.New(api, cfg.Telegram, eco, bans, rotator, cache, repos.Words, repos.Chats, logger, tp.TracerProvider, clk)
		if startErr := tgBot.Start(ctx); startErr != nil {
			return fmt.Errorf("starting bot: %w", startErr)
		}

		go bans.RunSweeper(ctx, cfg.Sweep.Interval)
		if cfg.Lottery.Enabled {
			go rotator.Run(ctx)
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "banbot is running", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		if stopErr := tgBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
		return nil
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, func(ctx context.Context) {
			if startErr := startBot(ctx); startErr != nil {
				logger.ErrorContext(ctx, "bot failed", slog.Any("error", startErr))
			}
		}, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		if err := startBot(ctx); err != nil {
			return err
		}
		logger.Info("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
