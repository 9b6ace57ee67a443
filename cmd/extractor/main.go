package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mailcal/internal/bus"
	"mailcal/internal/config"
	"mailcal/internal/events"
	"mailcal/internal/extraction"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger("extraction-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event bus publisher for analysis results
	publisher := bus.NewPublisher(cfg.KafkaBrokers, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing publisher")
		}
	}()

	// OpenAI-backed schedule parser
	client, err := extraction.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	handler := extraction.NewHandler(client, publisher, logger)

	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: "extraction-service",
		Topics:  []string{events.TopicEmailAnalysisRequest},
	}, logger)
	consumer.Handle(events.TopicEmailAnalysisRequest, handler.HandleAnalysisRequest)

	if err := consumer.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Consumer stopped with error")
	}
}
