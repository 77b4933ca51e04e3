package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/velykodnyi/corridor/docs"
	"github.com/velykodnyi/corridor/internal/app"
	"github.com/velykodnyi/corridor/internal/config"
)

// @title Corridor Region API
// @version 1.0
// @description Regional reservation service over a road segment ledger.
// @host localhost:8081
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	application, err := app.NewRegion(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
	}
}
