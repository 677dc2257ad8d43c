package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/dma-fix-gateway/internal/logging"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	var (
		count     = flag.Int("count", 20, "Number of place commands to produce")
		dupPct    = flag.Int("dup-pct", 30, "Percentage of redelivered commands (0-100)")
		cancelPct = flag.Int("cancel-pct", 20, "Percentage of placed orders to cancel afterwards (0-100)")
		seed      = flag.Int64("seed", 42, "Random seed for deterministic generation")
		brokers   = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		symbol    = flag.String("symbol", "DLR/MAR24", "Instrument to trade")
		account   = flag.String("account", "", "Account (empty uses the gateway default)")
		basePx    = flag.String("price", "850", "Base limit price")
		tick      = flag.String("tick", "0.5", "Price increment")
	)
	flag.Parse()

	logger, err := logging.NewLogger("order-producer", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	price, err := decimal.NewFromString(*basePx)
	if err != nil {
		logger.Fatal("invalid price", zap.Error(err))
	}
	step, err := decimal.NewFromString(*tick)
	if err != nil {
		logger.Fatal("invalid tick", zap.Error(err))
	}

	kafkaCfg := msg.LoadConfig()
	kafkaCfg.Brokers = msg.SplitBrokers(*brokers)
	kafkaCfg.ClientID = "order-producer"
	logger.Info("starting order producer",
		zap.Int("count", *count),
		zap.Int("dup_pct", *dupPct),
		zap.Int("cancel_pct", *cancelPct),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", kafkaCfg.Brokers),
		zap.String("symbol", *symbol),
	)

	// Create producer
	producer, err := msg.NewProducer(kafkaCfg, logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	// Create deterministic RNG
	rng := rand.New(rand.NewSource(*seed))

	// Generate place commands; duplicates reuse an earlier event id so the
	// gateway must send them only once
	cmds := make([]msg.OrderCmdMsg, 0, *count)
	var placed []msg.OrderCmdMsg
	dupCount := 0

	for i := 0; i < *count; i++ {
		if rng.Intn(100) < *dupPct && len(placed) > 0 {
			cmds = append(cmds, placed[rng.Intn(len(placed))])
			dupCount++
			continue
		}

		side := "BUY"
		if rng.Intn(2) == 1 {
			side = "SELL"
		}
		cmd := msg.OrderCmdMsg{
			EventID:      uuid.New().String(),
			Action:       msg.ActionPlace,
			Account:      *account,
			Symbol:       *symbol,
			Side:         side,
			Qty:          decimal.NewFromInt(int64(1 + rng.Intn(10))),
			Price:        price.Add(step.Mul(decimal.NewFromInt(int64(rng.Intn(10) - 5)))),
			TsUnixMillis: time.Now().UnixMilli(),
		}
		cmds = append(cmds, cmd)
		placed = append(placed, cmd)
	}

	// Produce commands
	ctx := context.Background()
	produced := 0
	failed := 0

	for _, cmd := range cmds {
		if err := producer.ProduceJSON(ctx, msg.TopicOrdersCommands, cmd.EventID, cmd); err != nil {
			logger.Error("failed to produce command",
				zap.String("event_id", cmd.EventID),
				zap.Error(err),
			)
			failed++
			continue
		}

		produced++
		logger.Debug("produced command",
			zap.String("event_id", cmd.EventID),
			zap.String("action", cmd.Action),
		)
	}

	// A mass cancel sweeps whatever the venue still holds at the end
	cancels := 0
	if *cancelPct > 0 && rng.Intn(100) < *cancelPct {
		cmd := msg.OrderCmdMsg{
			EventID:      uuid.New().String(),
			Action:       msg.ActionMassCancel,
			TsUnixMillis: time.Now().UnixMilli(),
		}
		if err := producer.ProduceJSON(ctx, msg.TopicOrdersCommands, cmd.EventID, cmd); err != nil {
			logger.Error("failed to produce mass cancel", zap.Error(err))
			failed++
		} else {
			cancels++
		}
	}

	logger.Info("order producer completed",
		zap.Int("total", len(cmds)),
		zap.Int("produced", produced),
		zap.Int("failed", failed),
		zap.Int("unique_commands", len(placed)),
		zap.Int("duplicates", dupCount),
		zap.Int("mass_cancels", cancels),
	)

	fmt.Printf("\n=== Order Producer Summary ===\n")
	fmt.Printf("Total commands: %d\n", len(cmds))
	fmt.Printf("Produced: %d\n", produced)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Unique commands: %d\n", len(placed))
	fmt.Printf("Duplicate commands: %d\n", dupCount)
	fmt.Printf("Mass cancels: %d\n", cancels)
	fmt.Printf("Topic: %s\n", msg.TopicOrdersCommands)
	fmt.Printf("\n")

	if failed > 0 {
		os.Exit(1)
	}
}
