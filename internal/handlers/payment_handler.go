package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/settlement"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

type PaymentHandler struct {
	store        *store.PaymentStore
	orchestrator *settlement.Orchestrator
	redisClient  *redis.Client
	pub          events.Publisher
}

func NewPaymentHandler(st *store.PaymentStore, orch *settlement.Orchestrator, redisClient *redis.Client, pub events.Publisher) *PaymentHandler {
	return &PaymentHandler{
		store:        st,
		orchestrator: orch,
		redisClient:  redisClient,
		pub:          pub,
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.CreatePaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Warn("Invalid payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	idempotencyKey := c.GetString("idempotency_key")

	id, err := h.store.Create(ctx, req, idempotencyKey)
	if err != nil {
		respondError(c, err)
		return
	}
	payment, _ := h.store.Get(ctx, id)

	telemetry.PaymentsCreated.Inc()
	telemetry.Logger.Info("Payment created",
		zap.String("payment_id", id),
		zap.String("payer", req.Payer),
		zap.Uint64("amount", req.Amount),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	if h.redisClient != nil && idempotencyKey != "" {
		paymentJSON, _ := json.Marshal(payment)
		h.redisClient.Set(ctx, fmt.Sprintf("idempotency:%s", idempotencyKey), paymentJSON, 24*time.Hour)
	}

	c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id := c.Param("id")

	payment, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"payment": payment}
	if intent, ok := h.orchestrator.Intent(id); ok {
		resp["settlement"] = gin.H{
			"kind":        intent.Kind,
			"handle":      intent.Handle.ID,
			"age_seconds": int64(time.Since(intent.CreatedAt).Seconds()),
		}
	}
	c.JSON(http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus is the manual/administrative correction path. It goes through
// the same transition table as the orchestrator: terminal states stay
// terminal.
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "applied": false})
		return
	}

	prev, err := h.store.UpdateStatus(ctx, id, status)
	if err != nil {
		respondApplyError(c, err)
		return
	}

	h.pub.PublishStatusChange(ctx, id, prev, status)
	telemetry.StatusTransitions.WithLabelValues(string(status)).Inc()
	telemetry.Logger.Info("Payment status updated",
		zap.String("payment_id", id),
		zap.String("status", string(status)),
	)

	c.JSON(http.StatusOK, gin.H{"payment_id": id, "status": status, "applied": true})
}

func (h *PaymentHandler) ListPayments(c *gin.Context) {
	payer := c.Query("payer")
	if payer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payer query parameter is required"})
		return
	}

	payments := h.store.ListByPayer(c.Request.Context(), payer)
	c.JSON(http.StatusOK, gin.H{"payer": payer, "payments": payments})
}

func (h *PaymentHandler) DepositAddress(c *gin.Context) {
	addr, err := h.orchestrator.DepositAddress(c.Request.Context(), c.Param("payer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr})
}

func (h *PaymentHandler) MintDepositAddress(c *gin.Context) {
	dep, err := h.orchestrator.MintDepositAddress(c.Request.Context(), c.Param("payer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (h *PaymentHandler) Balance(c *gin.Context) {
	balance, err := h.orchestrator.Balance(c.Request.Context(), c.Param("payer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *PaymentHandler) LedgerBalance(c *gin.Context) {
	balance, err := h.orchestrator.LedgerBalance(c.Request.Context(), c.Param("payer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *PaymentHandler) UTXOs(c *gin.Context) {
	utxos, err := h.orchestrator.UTXOs(c.Request.Context(), c.Param("payer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"utxos": utxos})
}

func (h *PaymentHandler) FeePercentiles(c *gin.Context) {
	fees, err := h.orchestrator.FeePercentiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"percentiles": fees})
}

func (h *PaymentHandler) WithdrawalFee(c *gin.Context) {
	amount, err := strconv.ParseUint(c.Query("amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount query parameter must be a positive integer"})
		return
	}

	fee, err := h.orchestrator.WithdrawalFee(c.Request.Context(), amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fee)
}

func (h *PaymentHandler) SettleTransfer(c *gin.Context) {
	id := c.Param("id")

	height, err := h.orchestrator.SettleTransfer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "status": models.StatusConfirmed, "block_height": height})
}

func (h *PaymentHandler) SettleMint(c *gin.Context) {
	id := c.Param("id")

	handle, err := h.orchestrator.SettleMint(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"payment_id": id, "status": models.StatusPending, "handle": handle.ID})
}

func (h *PaymentHandler) SettleWithdraw(c *gin.Context) {
	id := c.Param("id")

	handle, err := h.orchestrator.SettleWithdraw(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"payment_id": id, "status": models.StatusPending, "handle": handle.ID})
}

// respondApplyError mirrors respondError but includes the applied flag the
// status-update contract promises.
func respondApplyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "applied": false})
	case errors.Is(err, store.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "applied": false})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "applied": false})
	}
}

func respondError(c *gin.Context, err error) {
	var ledgerErr *settlement.LedgerError
	var minterErr *settlement.MinterError

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrIllegalTransition),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, settlement.ErrNotPending),
		errors.Is(err, settlement.ErrSettlementInProgress),
		errors.Is(err, settlement.ErrIntentOutstanding):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrOracleUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &ledgerErr):
		status := http.StatusUnprocessableEntity
		switch ledgerErr.Code {
		case settlement.LedgerTemporarilyUnavailable:
			status = http.StatusServiceUnavailable
		case settlement.LedgerGeneric:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": ledgerErr.Error()})
	case errors.As(err, &minterErr):
		status := http.StatusBadGateway
		switch minterErr.Code {
		case settlement.MinterMalformedAddress:
			status = http.StatusBadRequest
		case settlement.MinterTemporarilyUnavailable:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": minterErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
