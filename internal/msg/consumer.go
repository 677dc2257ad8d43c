package msg

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// ErrPermanent marks a handler error that retrying cannot fix
var ErrPermanent = errors.New("permanent handler error")

// Consumer wraps a Kafka consumer
type Consumer struct {
	client  *kgo.Client
	logger  *zap.Logger
	topics  []string
	group   string
	done    chan struct{}
	running int32
	handled int64
	failed  int64
}

// Handler processes one record. A returned error is retried unless it wraps
// ErrPermanent.
type Handler func(context.Context, Record) error

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *Config, group string, topics []string, logger *zap.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer %s: %w", group, err)
	}

	c := &Consumer{
		client: client,
		logger: logger,
		topics: topics,
		group:  group,
		done:   make(chan struct{}),
	}

	logger.Info("kafka consumer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", group),
		zap.Strings("topics", topics),
	)
	go c.logStats()

	return c, nil
}

// Run polls records and calls handler for each one until ctx is done. A
// record is committed once handled, or once the handler gives up on it so a
// poisoned command never blocks its partition. Records interrupted by
// shutdown stay uncommitted and are redelivered.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.logger.Info("consuming",
		zap.String("group", c.group),
		zap.Strings("topics", c.topics),
	)

	atomic.StoreInt32(&c.running, 1)
	defer atomic.StoreInt32(&c.running, 0)

	for ctx.Err() == nil {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.Warn("fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
			}
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			kr := iter.Next()
			err := c.handleWithRetry(ctx, fromKafka(kr), handler)
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				atomic.AddInt64(&c.failed, 1)
				c.logger.Error("dropping record",
					zap.String("topic", kr.Topic),
					zap.String("key", string(kr.Key)),
					zap.Int64("offset", kr.Offset),
					zap.Error(err),
				)
			} else {
				atomic.AddInt64(&c.handled, 1)
			}
			c.client.CommitRecords(ctx, kr)
		}
	}
	c.logger.Info("consumer stopped", zap.String("group", c.group))
	return ctx.Err()
}

func fromKafka(kr *kgo.Record) Record {
	return Record{
		Topic:     kr.Topic,
		Key:       string(kr.Key),
		Value:     kr.Value,
		Partition: kr.Partition,
		Offset:    kr.Offset,
		Timestamp: kr.Timestamp.UnixMilli(),
	}
}

// maxHandlerAttempts bounds deliveries of one record to the handler
const maxHandlerAttempts = 3

// handleWithRetry calls handler with exponential backoff. ErrPermanent stops
// the retries at once.
func (c *Consumer) handleWithRetry(ctx context.Context, rec Record, handler Handler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := handler(ctx, rec)
		if errors.Is(err, ErrPermanent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxHandlerAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("handler failed, retrying",
				zap.String("topic", rec.Topic),
				zap.String("key", rec.Key),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil || errors.Is(err, ErrPermanent) {
		return err
	}
	return fmt.Errorf("handler failed after %d attempts: %w", attempt, err)
}

// Close closes the consumer
func (c *Consumer) Close() {
	if c.client != nil {
		close(c.done)
		c.client.Close()
	}
}

// IsRunning returns whether the consumer is running
func (c *Consumer) IsRunning() bool {
	return atomic.LoadInt32(&c.running) == 1
}

// logStats reports handled and dropped counts every 30s while they move
func (c *Consumer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var lastHandled, lastFailed int64
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			handled, failed := atomic.LoadInt64(&c.handled), atomic.LoadInt64(&c.failed)
			if handled == lastHandled && failed == lastFailed {
				continue
			}
			lastHandled, lastFailed = handled, failed
			c.logger.Info("consumer stats",
				zap.String("group", c.group),
				zap.Int64("handled", handled),
				zap.Int64("dropped", failed),
			)
		}
	}
}
