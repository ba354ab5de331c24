package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/api"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/app"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/telegram"
)

func main() {
	cfg, err := config.LoadFromEnv("techfin-bot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	if cfg.Telegram.Token == "" {
		logger.Error("TELEGRAM_TOKEN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = components.Close() }()

	if cfg.History.Backend != config.HistoryBackendNone {
		if err := components.Retention.Start(ctx); err != nil {
			logger.Error("failed to start history retention", slog.Any("error", err))
			os.Exit(1)
		}
	}

	client, err := telegram.NewClient(telegram.ClientConfig{BaseURL: cfg.Telegram.BaseURL, Token: cfg.Telegram.Token})
	if err != nil {
		logger.Error("failed to initialize telegram client", slog.Any("error", err))
		os.Exit(1)
	}
	bot, err := telegram.NewBot(client, components.Pipeline, telegram.BotOptions{
		PollTimeout: cfg.Telegram.PollTimeout,
		SendRetries: cfg.Telegram.SendRetries,
		MaxInFlight: cfg.Telegram.MaxInFlight,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize telegram bot", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         components.Readiness,
		DependencyTimeout: time.Second,
		Asker:             components.Pipeline,
		Translator:        components.Translator,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	botDone := make(chan error, 1)
	go func() { botDone <- bot.Run(ctx) }()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
	select {
	case err := <-botDone:
		if err != nil {
			logger.Error("telegram bot stopped with error", slog.Any("error", err))
		}
	case <-shutdownCtx.Done():
		logger.Warn("telegram bot did not stop before the shutdown deadline")
	}
}
