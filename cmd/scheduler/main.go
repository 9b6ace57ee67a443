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
	"mailcal/internal/mailbox"
	"mailcal/internal/schedule"
	"mailcal/internal/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger("schedule-service")

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
	emails, err := database.NewEmailStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize email store")
	}
	artifacts, err := database.NewArtifactService(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize artifact service")
	}

	builder := ics.NewBuilder(schedules, artifacts, logger)
	dispatcher := email.NewDispatcher(cfg.SendGridAPIKey, cfg.SenderEmail)
	notifier := schedule.NewNotifier(schedules, emails, builder, dispatcher, logger)

	publisher := bus.NewPublisher(cfg.KafkaBrokers, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing publisher")
		}
	}()

	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: "schedule-service",
		Topics:  []string{events.TopicEmailAnalysisResult},
	}, logger)
	consumer.Handle(events.TopicEmailAnalysisResult, notifier.HandleAnalysisResult)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Consumer stopped with error")
		}
		stop()
	}()

	// Inbox poller is optional; without Gmail credentials the service only
	// reacts to events already on the bus.
	serverOpts := []server.Option{server.WithSchedules(schedules)}
	if cfg.GmailCredentials != "" {
		poller, err := mailbox.NewPoller(ctx, cfg.GmailCredentials, emails, publisher, cfg.InboxMaxResults, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize inbox poller")
		}
		serverOpts = append(serverOpts, server.WithInbox(poller))

		if cfg.InboxPollMinutes > 0 {
			go poller.Run(ctx, time.Duration(cfg.InboxPollMinutes)*time.Minute)
		}
	} else {
		logger.Info().Msg("GMAIL_CREDENTIALS not set, inbox polling disabled")
	}

	// Create and initialize server
	srv := server.New(cfg, db, logger, serverOpts...)
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
