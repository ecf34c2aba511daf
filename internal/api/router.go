package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/handlers"
	"github.com/0xMgwan/BTCx/internal/middleware"
	"github.com/0xMgwan/BTCx/internal/settlement"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

func NewRouter(
	st *store.PaymentStore,
	orch *settlement.Orchestrator,
	redisClient *redis.Client,
	nc *nats.Conn,
	pub events.Publisher,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check: degraded when a configured dependency is down.
	r.GET("/health", func(c *gin.Context) {
		components := gin.H{}
		healthy := true
		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				components["redis"] = "down"
				healthy = false
			} else {
				components["redis"] = "ok"
			}
		}
		if nc != nil {
			if nc.IsConnected() {
				components["nats"] = "ok"
			} else {
				components["nats"] = "down"
				healthy = false
			}
		}
		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "service": "btcx", "components": components})
	})

	paymentHandler := handlers.NewPaymentHandler(st, orch, redisClient, pub)

	payments := r.Group("/payments")
	{
		payments.POST("", middleware.Idempotency(redisClient, st), paymentHandler.CreatePayment)
		payments.GET("", paymentHandler.ListPayments)
		payments.GET("/:id", paymentHandler.GetPayment)
		payments.POST("/:id/status", paymentHandler.UpdateStatus)
		payments.POST("/:id/settle/transfer", paymentHandler.SettleTransfer)
		payments.POST("/:id/settle/mint", paymentHandler.SettleMint)
		payments.POST("/:id/settle/withdraw", paymentHandler.SettleWithdraw)
	}

	wallet := r.Group("/wallet")
	{
		wallet.GET("/:payer/address", paymentHandler.DepositAddress)
		wallet.GET("/:payer/deposit-address", paymentHandler.MintDepositAddress)
		wallet.GET("/:payer/balance", paymentHandler.Balance)
		wallet.GET("/:payer/ledger-balance", paymentHandler.LedgerBalance)
		wallet.GET("/:payer/utxos", paymentHandler.UTXOs)
	}

	r.GET("/fees", paymentHandler.FeePercentiles)
	r.GET("/fees/withdrawal", paymentHandler.WithdrawalFee)

	return r
}
