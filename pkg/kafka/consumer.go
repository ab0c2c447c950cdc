package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// messageReader is the subset of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer handles Kafka message consumption. A failed message is retried
// with capped exponential backoff and blocks its partition until it succeeds
// or the consumer stops, because committing a later offset of a group reader
// would skip it for good.
type Consumer struct {
	reader  messageReader
	topic   string
	logger  ectologger.Logger
	handler MessageHandler
	backoff backoffConfig
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

type backoffConfig struct {
	initial time.Duration
	max     time.Duration
}

func (b backoffConfig) next(current time.Duration) time.Duration {
	if current <= 0 {
		return b.initial
	}
	current *= 2
	if current > b.max {
		return b.max
	}
	return current
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg config.Config, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return NewConsumerWithConfig(ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaInputTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
		RetryBackoff:  cfg.KafkaRetryBackoff,
		RetryMaxWait:  cfg.KafkaRetryMaxBackoff,
	}, logger, handler)
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// RetryBackoff is the first wait after a failed message; it doubles up to RetryMaxWait.
	RetryBackoff time.Duration
	RetryMaxWait time.Duration
}

// NewConsumerWithConfig creates a new Kafka consumer with explicit config
func NewConsumerWithConfig(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, cfg, logger, handler)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	backoff := backoffConfig{initial: cfg.RetryBackoff, max: cfg.RetryMaxWait}
	if backoff.initial <= 0 {
		backoff.initial = 200 * time.Millisecond
	}
	if backoff.max < backoff.initial {
		backoff.max = 30 * time.Second
	}

	return &Consumer{
		reader:  reader,
		topic:   cfg.Topic,
		logger:  logger,
		handler: handler,
		backoff: backoff,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	incoming := NewIncomingMessage(msg)
	ctx = tracing.ContextWithTraceParent(ctx, incoming.TraceParent)

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if !c.handleWithRetry(ctx, log, msg.Topic, incoming) {
		// stopped mid-retry: the group offset stays before msg
		return
	}
	metrics.KafkaMessagesTotal.WithLabelValues(msg.Topic, "processed").Inc()

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// handleWithRetry runs the handler until it succeeds. The handler returns nil
// for payloads that can never succeed, so every error here is transient.
// It reports false when ctx ends first.
func (c *Consumer) handleWithRetry(ctx context.Context, log ectologger.Logger, topic string, incoming *IncomingMessage) bool {
	var wait time.Duration
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, incoming)
		if err == nil {
			return true
		}

		wait = c.backoff.next(wait)
		metrics.KafkaMessagesTotal.WithLabelValues(topic, "retried").Inc()
		log.WithError(err).WithFields(map[string]any{
			"attempt": attempt,
			"backoff": wait.String(),
		}).Error("Failed to process message, retrying")

		select {
		case <-ctx.Done():
			metrics.KafkaMessagesTotal.WithLabelValues(topic, "failed").Inc()
			return false
		case <-time.After(wait):
		}
	}
}

// NewIncomingMessage copies a fetched message and its headers.
func NewIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
	}
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
