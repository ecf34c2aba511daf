package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/api"
	"github.com/0xMgwan/BTCx/internal/config"
	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/reconcile"
	"github.com/0xMgwan/BTCx/internal/settlement"
	"github.com/0xMgwan/BTCx/internal/settlement/mock"
	"github.com/0xMgwan/BTCx/internal/settlement/natsrpc"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

func main() {
	// Initialize telemetry
	if err := telemetry.InitTelemetry("btcx"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting BTCx settlement core")

	cfg := config.Load()

	// Connect to Redis (optional: idempotency cache and settlement locks)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
	}

	// Connect to NATS for the external settlement services; without it the
	// in-process fakes serve local runs.
	var (
		nc     *nats.Conn
		oracle settlement.Oracle
		ledger settlement.Ledger
		minter settlement.Minter
	)
	if cfg.NatsURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		oracle = natsrpc.NewOracle(nc, 0)
		ledger = natsrpc.NewLedger(nc, 0)
		minter = natsrpc.NewMinter(nc, 0)
		telemetry.Logger.Info("Using NATS settlement services", zap.String("url", cfg.NatsURL))
	} else {
		localMinter := mock.NewMinter()
		localMinter.SetFeeRate(decimal.RequireFromString(cfg.MinterFeeRate))
		oracle = mock.NewOracle()
		ledger = mock.NewLedger()
		minter = localMinter
		telemetry.Logger.Warn("NATS_URL not set, using in-memory settlement services")
	}

	// Kafka publisher for status change events
	var pub events.Publisher = events.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		pub = kp
	}

	paymentStore := store.NewPaymentStore()
	intents := settlement.NewIntentRegistry()

	orchestrator := settlement.NewOrchestrator(
		paymentStore, oracle, ledger, minter, intents,
		redisClient, pub,
		cfg.RetryInitialInterval, cfg.RetryMaxAttempts,
	)

	// Start the reconciliation sweep
	reconCtx, stopRecon := context.WithCancel(context.Background())
	defer stopRecon()
	reconciler := reconcile.New(paymentStore, minter, intents, pub, cfg.ReconcileInterval, cfg.ReconcileMaxWait)
	go reconciler.Start(reconCtx)

	r := api.NewRouter(paymentStore, orchestrator, redisClient, nc, pub)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("BTCx starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopRecon()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
