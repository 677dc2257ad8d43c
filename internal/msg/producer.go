package msg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer wraps a Kafka producer
type Producer struct {
	client       *kgo.Client
	logger       *zap.Logger
	done         chan struct{}
	produceCount int64
	errorCount   int64
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *Config, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Producer{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("client_id", cfg.ClientID),
	)

	go p.logStats()

	return p, nil
}

// ProduceJSON produces a JSON message to the specified topic and waits for
// the broker acknowledgement
func (p *Producer) ProduceJSON(ctx context.Context, topic string, key string, v any) error {
	record, err := p.record(topic, key, v)
	if err != nil {
		return err
	}

	// Synchronous produce with timeout
	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return fmt.Errorf("failed to produce message: %w", result.FirstErr())
	}

	atomic.AddInt64(&p.produceCount, 1)
	return nil
}

// ProduceJSONAsync enqueues a JSON message without waiting. Failures are
// counted and logged.
func (p *Producer) ProduceJSONAsync(ctx context.Context, topic string, key string, v any) {
	record, err := p.record(topic, key, v)
	if err != nil {
		p.logger.Warn("dropping unencodable message", zap.String("topic", topic), zap.Error(err))
		return
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			p.logger.Debug("async produce failed", zap.String("topic", r.Topic), zap.Error(err))
			return
		}
		atomic.AddInt64(&p.produceCount, 1)
	})
}

func (p *Producer) record(topic, key string, v any) (*kgo.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return &kgo.Record{Topic: topic, Key: []byte(key), Value: data}, nil
}

// Close flushes buffered records and closes the producer
func (p *Producer) Close() {
	if p.client == nil {
		return
	}
	close(p.done)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("producer flush failed", zap.Error(err))
	}
	p.client.Close()
}

// logStats logs producer statistics periodically
func (p *Producer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.logger.Info("producer stats",
				zap.Int64("produced", atomic.LoadInt64(&p.produceCount)),
				zap.Int64("errors", atomic.LoadInt64(&p.errorCount)),
			)
		}
	}
}
