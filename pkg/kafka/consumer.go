package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
)

// deadLetterRetries bounds the dead-letter publish retries for one message.
const deadLetterRetries = 4

// Handler processes a consumed Kafka message.
type Handler func(ctx context.Context, msg Message) error

// DeadLetterPublisher receives messages the handler rejected.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, topic string, messages ...Message) error
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes messages whose handler failed to topic on p before committing them.
func WithDeadLetter(p DeadLetterPublisher, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetter = p
		c.deadLetterTopic = topic
	}
}

// Consumer reads one topic as part of a consumer group and commits each message after
// it has been handled or dead-lettered. When dead-lettering still fails after retries,
// Start returns the error with the message uncommitted.
type Consumer struct {
	reader          *kafkago.Reader
	handler         Handler
	deadLetter      DeadLetterPublisher
	logger          *slog.Logger
	retryBackOff    func() backoff.BackOff
	deadLetterTopic string
}

// NewConsumer creates a Consumer for topic.
func NewConsumer(cfg Config, topic string, handler Handler, logger *slog.Logger, opts ...ConsumerOption) (*Consumer, error) {
	dialer, err := cfg.dialer()
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	c := &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.ConsumerGroup,
			MinBytes: 1,
			MaxBytes: 10 << 20,
			Dialer:   dialer,
		}),
		handler: handler,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := c.reader.Config()
	c.logger.Info("consumer starting", "topic", cfg.Topic, "group", cfg.GroupID)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer stopping due to context cancellation")
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}

		if err := c.handle(ctx, m); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer stopping due to context cancellation")
				return nil
			}
			// Stop before committing anything later, so the group redelivers this message.
			c.logger.Error("dead-letter publish failed, stopping consumer",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
			return fmt.Errorf("dead-lettering message at offset %d: %w", m.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("commit error",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafkago.Message) error {
	msg := fromKafkaMessage(m)
	err := c.handler(ctx, msg)
	if err == nil {
		return nil
	}

	c.logger.Warn("handler rejected message",
		"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
	if c.deadLetter == nil {
		return nil
	}

	msg.Headers["x-error"] = err.Error()
	msg.Headers["x-source-topic"] = m.Topic
	msg.Headers["x-source-offset"] = strconv.FormatInt(m.Offset, 10)
	return c.publishDeadLetter(ctx, msg)
}

// publishDeadLetter retries the dead-letter publish with exponential backoff until it
// succeeds, the retries run out or ctx is done.
func (c *Consumer) publishDeadLetter(ctx context.Context, msg Message) error {
	newBackOff := c.retryBackOff
	if newBackOff == nil {
		newBackOff = defaultRetryBackOff
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), deadLetterRetries), ctx)

	return backoff.RetryNotify(func() error {
		return c.deadLetter.Publish(ctx, c.deadLetterTopic, msg)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("dead-letter publish failed, retrying", "wait", wait, "error", err)
	})
}

func defaultRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// Close closes the reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}
