package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/logging"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <duration_seconds> [brokers]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 30 127.0.0.1:9092\n", os.Args[0])
		os.Exit(1)
	}

	var durationSeconds int
	if _, err := fmt.Sscanf(os.Args[1], "%d", &durationSeconds); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid duration: %v\n", err)
		os.Exit(1)
	}

	kafkaCfg := msg.LoadConfig()
	if len(os.Args) >= 3 {
		kafkaCfg.Brokers = msg.SplitBrokers(os.Args[2])
	}
	kafkaCfg.ClientID = "fix-verifier"

	logger, err := logging.NewLogger("fix-verifier", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting verifier",
		zap.Int("duration_seconds", durationSeconds),
		zap.Strings("brokers", kafkaCfg.Brokers),
	)

	// Create consumer
	consumer, err := msg.NewConsumer(kafkaCfg, "fix-verifier-v1", []string{msg.TopicOrdersEvents}, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	l := newLedger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationSeconds)*time.Second)
	defer cancel()

	// Consume events
	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		var event msg.OrderEventMsg
		if err := json.Unmarshal(rec.Value, &event); err != nil {
			logger.Warn("failed to unmarshal event", zap.Error(err))
			return nil // Continue processing
		}
		l.add(event)

		logger.Debug("consumed event",
			zap.String("cl_ord_id", event.ClOrdID),
			zap.String("event_id", event.EventID),
			zap.String("event", event.Event),
			zap.String("status", event.Status),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", zap.Error(err))
	}

	dupTerminals := l.duplicateTerminals()
	dupExecs := l.duplicateExecs()

	// Print results
	fmt.Println("\n=== Verification Results ===")
	fmt.Printf("Total events consumed: %d\n", l.events)
	fmt.Printf("Redelivered events: %d\n", l.redelivers)
	fmt.Printf("Logical orders: %d\n", l.orders())
	fmt.Printf("Orders with duplicate terminal transitions: %d\n", len(dupTerminals))
	fmt.Printf("Duplicate execution ids: %d\n", len(dupExecs))

	if len(dupTerminals) > 0 || len(dupExecs) > 0 {
		for id, n := range dupTerminals {
			fmt.Printf("  Order: %s, Terminal transitions: %d\n", id, n)
		}
		for id, n := range dupExecs {
			fmt.Printf("  ExecID: %s, Applied: %d\n", id, n)
		}
		fmt.Println("\n❌ VERIFICATION FAILED: Duplicates detected!")
		os.Exit(1)
	}

	fmt.Println("\n✅ VERIFICATION PASSED: No duplicates detected!")
}
