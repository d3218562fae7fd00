package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/AngelCh415/marketing-datagen/internal/config"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("DOTENV")); err != nil {
		slog.Error("dotenv", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "datagen",
		Usage: "generate a reproducible synthetic marketing dataset",
		Commands: []*cli.Command{
			generateCommand(cfg, logger),
			validateCommand(logger),
			trainCommand(cfg, logger),
		},
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error("datagen failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
