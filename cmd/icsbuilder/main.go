package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailcal/internal/bus"
	"mailcal/internal/config"
	"mailcal/internal/database"
	"mailcal/internal/email"
	"mailcal/internal/events"
	"mailcal/internal/ics"
	"mailcal/internal/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger("icsfile-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	schedules, err := database.NewScheduleService(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize schedule service")
	}
	artifacts, err := database.NewArtifactService(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize artifact service")
	}

	builder := ics.NewBuilder(schedules, artifacts, logger)
	dispatcher := email.NewDispatcher(cfg.SendGridAPIKey, cfg.SenderEmail)

	publisher := bus.NewPublisher(cfg.KafkaBrokers, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing publisher")
		}
	}()

	eventHandler := ics.NewEventHandler(builder, publisher, cfg.PublicBaseURL, logger)

	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: "icsfile-service",
		Topics: []string{
			events.TopicCalendarICSRequested,
			events.TopicScheduleCreate,
			events.TopicCalendarICSDeleteRequested,
		},
	}, logger)
	consumer.Handle(events.TopicCalendarICSRequested, eventHandler.HandleCalendarRequested)
	consumer.Handle(events.TopicScheduleCreate, eventHandler.HandleScheduleCreate)
	consumer.Handle(events.TopicCalendarICSDeleteRequested, eventHandler.HandleDeleteRequested)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Consumer stopped with error")
		}
		stop()
	}()

	// Create and initialize server
	srv := server.New(cfg, db, logger, server.WithArtifacts(builder), server.WithSender(dispatcher))
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server stopped with error")
		}
		stop()
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown failed")
	}

	// Let in-flight handlers drain before the deferred closes run
	<-consumerDone
}
