// Package bus wraps the Kafka transport for the mailcal services. It owns the
// retry/backoff policy at the adapter boundary so business handlers stay free
// of retry logic: a handler either succeeds, or logs-and-returns-nil to drop a
// bad message, or returns an error to fail the delivery.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded message for a topic. Returning nil commits the
// message. Returning an error triggers bounded retries and, on exhaustion,
// fails the delivery so the message is redelivered after restart.
type Handler func(ctx context.Context, key, value []byte) error

// Publisher writes events to the bus. Messages are hash-balanced on their key
// so events sharing a correlation id stay on one partition.
type Publisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewPublisher creates a publisher for the given brokers. The caller owns the
// lifecycle and must Close it on shutdown.
func NewPublisher(brokers []string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish marshals the payload and writes it to the topic keyed by key. The
// write either fully succeeds or fails; no partial payload is ever visible.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug().Str("topic", topic).Str("key", key).Msg("Event published")
	return nil
}

// Close flushes and closes the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ConsumerConfig configures a consumer group member.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string // fixed per service so replicas load-balance partitions
	Topics       []string
	MaxRetries   int           // handler retries before failing the delivery
	RetryBackoff time.Duration // initial backoff, doubled per attempt
}

// Consumer reads messages for one consumer group and routes them to registered
// topic handlers. Messages from different partitions are processed
// concurrently; messages sharing a partition are processed in observed order.
type Consumer struct {
	reader       *kafka.Reader
	handlers     map[string]Handler
	logger       zerolog.Logger
	maxRetries   int
	retryBackoff time.Duration
}

// NewConsumer creates a consumer group member subscribed to the given topics
func NewConsumer(cfg ConsumerConfig, logger zerolog.Logger) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			GroupTopics: cfg.Topics,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
		}),
		handlers:     make(map[string]Handler),
		logger:       logger,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Handle registers the handler for a topic. Must be called before Run.
func (c *Consumer) Handle(topic string, h Handler) {
	c.handlers[topic] = h
}

// workerKey identifies one ordered message stream. Partition numbers repeat
// across topics, so the topic is part of the key: a blocking handler on one
// topic must not delay another topic's messages.
type workerKey struct {
	topic     string
	partition int
}

// Run consumes until the context is cancelled. Each assigned topic partition
// gets its own worker goroutine so a blocking handler on one key cannot
// starve unrelated streams. A handler that exhausts its retries stops the
// consumer without committing, so the message is redelivered on restart.
func (c *Consumer) Run(ctx context.Context) error {
	workers := make(map[workerKey]chan kafka.Message)
	errc := make(chan error, 1)
	var wg sync.WaitGroup

	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
		if err := c.reader.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing kafka reader")
		}
	}()

	c.logger.Info().Str("group", c.reader.Config().GroupID).Msg("Consumer started")

	for {
		select {
		case err := <-errc:
			return err
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info().Msg("Consumer stopping")
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		key := workerKey{topic: msg.Topic, partition: msg.Partition}
		ch, ok := workers[key]
		if !ok {
			ch = make(chan kafka.Message, 16)
			workers[key] = ch
			wg.Add(1)
			go c.partitionWorker(ctx, ch, errc, &wg)
		}

		select {
		case ch <- msg:
		case err := <-errc:
			return err
		case <-ctx.Done():
			c.logger.Info().Msg("Consumer stopping")
			return nil
		}
	}
}

// partitionWorker processes one partition's messages in order
func (c *Consumer) partitionWorker(ctx context.Context, ch <-chan kafka.Message, errc chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	for msg := range ch {
		if err := c.process(ctx, msg); err != nil {
			select {
			case errc <- err:
			default:
			}
			return
		}
	}
}

// process dispatches one message and commits it on success
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	if err := c.dispatch(ctx, msg.Topic, msg.Key, msg.Value); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown raced the commit; at-least-once delivery covers the redo.
			return nil
		}
		return fmt.Errorf("failed to commit %s offset %d: %w", msg.Topic, msg.Offset, err)
	}
	return nil
}

// dispatch routes the message to its handler with bounded backoff retries.
// Unknown topics are logged and ignored, never fatal.
func (c *Consumer) dispatch(ctx context.Context, topic string, key, value []byte) error {
	handler, ok := c.handlers[topic]
	if !ok {
		c.logger.Warn().Str("topic", topic).Msg("Ignoring message on unknown topic")
		return nil
	}

	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().
				Str("topic", topic).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying message handler")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if lastErr = handler(ctx, key, value); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("handler for %s exhausted %d retries: %w", topic, c.maxRetries, lastErr)
}
