package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"aquaexport/internal/app"
	"aquaexport/internal/config"
	"aquaexport/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration (defaults to AQUA_CONFIG or configs/aquaexport.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	application, err := app.NewApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
