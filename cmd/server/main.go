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

	"github.com/AngelCh415/marketing-datagen/internal/config"
	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/export"
	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/httpx"
	"github.com/AngelCh415/marketing-datagen/internal/metrics"
	"github.com/AngelCh415/marketing-datagen/internal/predict"
	"github.com/AngelCh415/marketing-datagen/internal/store"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("DOTENV")); err != nil {
		slog.Error("dotenv", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := generator.DefaultParams()
	p.Days, p.Users, p.Campaigns, p.Seed = cfg.ServeDays, cfg.ServeUsers, cfg.ServeCampaigns, cfg.Seed
	if cfg.EventsFile != "" {
		set, err := events.LoadFile(cfg.EventsFile)
		if err != nil {
			logger.Error("events", slog.String("err", err.Error()))
			os.Exit(1)
		}
		p.Events = &set
	}
	gen, err := generator.New(p, logger)
	if err != nil {
		logger.Error("generator", slog.String("err", err.Error()))
		os.Exit(1)
	}
	pred, err := predict.Select(cfg.ModelPath, logger)
	if err != nil {
		logger.Error("predictor", slog.String("err", err.Error()))
		os.Exit(1)
	}

	st := store.NewMemoryStore()
	mSvc := metrics.NewService(st)
	exp := export.NewExporter(export.NewHTTPClient(cfg.HTTPTimeout), mSvc, logger, cfg)

	// /readyz answers 503 until the dataset is in memory
	go func() {
		if _, err := gen.Run(ctx, st); err != nil {
			logger.Error("generation failed", slog.String("err", err.Error()))
			stop()
		}
	}()

	r := httpx.NewRouter(logger, httpx.Deps{Metrics: mSvc, Exporter: exp, Predictor: pred, CORSOrigins: cfg.CORSOrigins})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("predictor", pred.Kind()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
