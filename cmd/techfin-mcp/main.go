package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/app"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/mcpserver"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("techfin-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger := observability.NewLogger(cfg, os.Stderr)

	components, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = components.Close() }()

	s := mcpserver.NewServer(components.Pipeline, components.Translator, logger)
	if err := mcpserver.ServeStdio(s); err != nil {
		logger.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
