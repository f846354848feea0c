// Package kafka provides producer and consumer clients backed by
// segmentio/kafka-go. Events are JSON on the wire; consumers hand raw
// messages to a MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/resilience"
)

// MessageHandler is invoked for each message. A returned error is retried
// with backoff; once the attempts are spent the message is logged, dropped
// and committed so the partition keeps moving.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const handlerAttempts = 5

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a topic and dispatches them to a handler.
type Consumer struct {
	reader  reader
	logger  *slog.Logger
	handler MessageHandler
	backoff resilience.Backoff
}

// NewConsumer creates a Consumer for topic. An empty groupID uses
// cfg.ConsumerGroup. With cfg.FromOldest a new group starts at the oldest
// offset, which the indexer uses to rebuild from the ingest log.
func NewConsumer(cfg config.KafkaConfig, topic string, groupID string, handler MessageHandler) *Consumer {
	if groupID == "" {
		groupID = cfg.ConsumerGroup
	}
	start := kafka.LastOffset
	if cfg.FromOldest {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: start,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		backoff: resilience.Backoff{Initial: 200 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2, Jitter: 0.2},
	}
}

// Start fetches and processes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			fetchFailures++
			delay := c.backoff.Delay(fetchFailures)
			c.logger.Error("failed to fetch message", "error", err, "failures", fetchFailures, "backoff", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		fetchFailures = 0

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler with retries. It reports false only when ctx
// ended first, in which case the message must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	name := fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
	err := resilience.Retry(ctx, name, resilience.RetryConfig{
		MaxAttempts: handlerAttempts,
		Backoff:     c.backoff,
	}, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		c.logger.Error("dropping message after failed attempts",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempts", handlerAttempts,
			"error", err,
		)
	}
	return true
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
