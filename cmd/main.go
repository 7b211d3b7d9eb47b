package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/journalpost/internal/api"
	"github.com/journalpost/internal/auth"
	"github.com/journalpost/internal/config"
	"github.com/journalpost/internal/database"
	"github.com/journalpost/internal/deliver"
	"github.com/journalpost/internal/engine"
	"github.com/journalpost/internal/render"
	"github.com/journalpost/internal/scheduler"
	"github.com/journalpost/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	scheduleStore := store.NewScheduleStore(db)
	authService := auth.NewService(db)

	adapters := []deliver.Adapter{
		deliver.NewEmailAdapter(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Password),
		deliver.NewSMSAdapter(cfg.SMS.GatewayDomain, cfg.SMS.APIKey, cfg.SMS.SourceNumber, cfg.Delivery.RecipientTimeout),
	}

	eng := engine.New(scheduleStore, render.NewPDFRenderer(), adapters, cfg.Delivery.RecipientTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := scheduler.New(scheduleStore, eng, cfg.Scheduler.Interval, cfg.Scheduler.Workers, logger)
	loop.Start(ctx)
	defer loop.Stop()

	server := api.NewServer(scheduleStore, authService, eng, cfg, logger)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
