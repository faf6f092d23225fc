package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/dwizi/region-relay/internal/cli"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("load .env failed", "error", err)
	}
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
