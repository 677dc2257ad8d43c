package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ismaiel54/dma-fix-gateway/internal/chaos"
	"github.com/ismaiel54/dma-fix-gateway/internal/config"
	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/ismaiel54/dma-fix-gateway/internal/gateway"
	"github.com/ismaiel54/dma-fix-gateway/internal/logging"
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/ismaiel54/dma-fix-gateway/internal/observability"
	"github.com/ismaiel54/dma-fix-gateway/internal/session"
	"github.com/ismaiel54/dma-fix-gateway/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Exit codes
const (
	exitOK      = 0
	exitStartup = 1
	exitSession = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg := config.LoadConfig("fix-gateway")

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitStartup
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return exitStartup
	}
	dialect, err := cfg.Dialect()
	if err != nil {
		logger.Error("invalid dialect", zap.Error(err))
		return exitStartup
	}

	logger.Info("starting fix-gateway service",
		zap.String("venue", cfg.FIXAddr()),
		zap.String("dialect", dialect.Name),
		zap.String("session", cfg.SessionKey()),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Bool("kafka_enabled", cfg.KafkaEnabled),
		zap.String("data_dir", cfg.DataDir),
	)

	// Open store (sequence numbers, processed commands, outbox)
	dbPath := filepath.Join(cfg.DataDir, "gateway.db")
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return exitStartup
	}
	defer st.Close()
	logger.Info("store opened", zap.String("path", dbPath))

	// Metrics and health
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker(logger)

	// Transport: TLS, optionally behind fault injection
	serverName := cfg.FIX.TLSServerName
	if serverName == "" {
		serverName = cfg.FIX.Host
	}
	tlsConfig := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.FIX.TLSInsecureSkipVerify,
	}
	chaosCfg := chaos.LoadConfig()
	dialer := chaos.New(chaosCfg, logger).WrapDialer(session.NewTLSDialer(tlsConfig, cfg.FIX.ConnectTimeout))

	sess := session.New(session.Options{
		Addr:               cfg.FIXAddr(),
		Credentials:        fix.Credentials{Username: cfg.FIX.Username, Password: cfg.FIX.Password},
		HeartbeatInterval:  cfg.FIX.HeartbeatInterval,
		ConnectTimeout:     cfg.FIX.ConnectTimeout,
		MaxConnectAttempts: cfg.FIX.MaxConnectAttempts,
		BackOff:            backoff.NewConstantBackOff(cfg.FIX.ReconnectInterval),
		ResetOnLogon:       cfg.FIX.ResetOnLogon,
		ReserveBlock:       cfg.FIX.SeqReserveBlock,
	}, fix.NewBuilder(dialect, fix.NewCounters()), dialer, logger).
		WithStore(st.ForSession(cfg.SessionKey())).
		WithMetrics(metrics)

	// Kafka producer and consumer
	deps := gateway.Deps{Events: st, Ledger: st, Metrics: metrics}
	var (
		producer *msg.Producer
		consumer *msg.Consumer
	)
	if cfg.KafkaEnabled {
		kafkaCfg := msg.LoadConfig()
		kafkaCfg.Brokers = msg.SplitBrokers(cfg.KafkaBrokers)

		producer, err = msg.NewProducer(kafkaCfg, logger)
		if err != nil {
			logger.Error("failed to create kafka producer", zap.Error(err))
			return exitStartup
		}
		defer producer.Close()
		deps.Books = producer

		consumer, err = msg.NewConsumer(kafkaCfg, "fix-gateway-v1", []string{msg.TopicOrdersCommands}, logger)
		if err != nil {
			logger.Error("failed to create kafka consumer", zap.Error(err))
			return exitStartup
		}
		defer consumer.Close()
	}

	client := gateway.NewClient(sess, cfg.FIX.BookDepth, cfg.FIX.Account, deps, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Renew subscriptions after every logon
	sess.OnStateChange(func(state session.State) {
		healthChecker.SetSessionReady(state == session.StateLoggedOn)
		if state != session.StateLoggedOn {
			return
		}
		go onLogon(ctx, client, cfg.FIX, logger)
	})

	// Create gRPC server
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Error("failed to listen on gRPC port", zap.Error(err))
		return exitStartup
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// Start HTTP health and metrics server
	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr(), observability.Handler(registry)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
	}()

	// Start the FIX session
	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", zap.Error(err))
		return exitStartup
	}

	consumerErrCh := make(chan error, 1)
	publisherErrCh := make(chan error, 1)
	if cfg.KafkaEnabled {
		go func() {
			if err := consumer.Run(ctx, client.HandleCommand); err != nil && !errors.Is(err, context.Canceled) {
				consumerErrCh <- err
			}
		}()

		publisher := store.NewPublisher(st, producer, logger)
		go func() {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				publisherErrCh <- err
			}
		}()

		// Wait for consumer to start
		time.Sleep(1 * time.Second)
		if consumer.IsRunning() {
			healthChecker.SetKafkaReady(true)
		} else {
			logger.Warn("consumer not running yet")
		}
	}

	// Wait for interrupt signal or a fatal session error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	code := exitOK
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-sess.Fatal():
		kind, _ := session.KindOf(err)
		logger.Error("fix session stopped", zap.String("kind", kind.String()), zap.Error(err))
		code = exitSession
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
		code = exitStartup
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
		code = exitStartup
	case err := <-consumerErrCh:
		logger.Error("consumer error", zap.Error(err))
		code = exitStartup
	case err := <-publisherErrCh:
		logger.Error("publisher error", zap.Error(err))
		code = exitStartup
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sess.Disconnect(shutdownCtx); err != nil {
		logger.Error("error disconnecting session", zap.Error(err))
	}
	cancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("fix-gateway service stopped", zap.Int("exit_code", code))
	return code
}

// onLogon renews market data after a (re)connect and requests reference
// data when configured
func onLogon(ctx context.Context, client *gateway.Client, cfg config.FIXConfig, logger *zap.Logger) {
	if err := client.Resubscribe(ctx); err != nil {
		logger.Warn("failed to renew subscriptions", zap.Error(err))
	}
	for _, symbol := range cfg.Subscribe {
		if err := client.Subscribe(ctx, symbol); err != nil {
			logger.Warn("failed to subscribe", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if cfg.RequestSecurityList {
		if _, err := client.RequestSecurityList(ctx); err != nil {
			logger.Warn("failed to request security list", zap.Error(err))
		}
	}
}
