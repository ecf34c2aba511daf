// Package reconcile advances payment records whose settlement was initiated
// but not yet observed terminal. Mint and withdraw calls only start tracking
// on the minter, so a periodic sweep re-queries the outstanding handles and
// moves matching records to Confirmed or Failed.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/settlement"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

type Reconciler struct {
	store   *store.PaymentStore
	minter  settlement.Minter
	intents *settlement.IntentRegistry
	pub     events.Publisher

	interval time.Duration
	maxWait  time.Duration
}

func New(
	st *store.PaymentStore,
	minter settlement.Minter,
	intents *settlement.IntentRegistry,
	pub events.Publisher,
	interval, maxWait time.Duration,
) *Reconciler {
	return &Reconciler{
		store:    st,
		minter:   minter,
		intents:  intents,
		pub:      pub,
		interval: interval,
		maxWait:  maxWait,
	}
}

// Start runs sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	telemetry.Logger.Info("Reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("max_wait", r.maxWait),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep re-queries every outstanding intent once. A failure on one intent
// never blocks the rest of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) {
	telemetry.ReconcileSweeps.Inc()

	for _, intent := range r.intents.List() {
		r.sweepOne(ctx, intent)
	}
}

func (r *Reconciler) sweepOne(ctx context.Context, intent settlement.Intent) {
	rec, err := r.store.Get(ctx, intent.PaymentID)
	if err != nil {
		// Intent for an unknown record can never resolve.
		r.intents.Resolve(intent.PaymentID)
		return
	}
	if rec.Status.Terminal() {
		// Someone else (manual correction) finished this payment.
		r.intents.Resolve(intent.PaymentID)
		return
	}

	outcome, err := r.outcome(ctx, intent)
	if err != nil {
		telemetry.Logger.Warn("Reconcile status query failed",
			zap.String("payment_id", intent.PaymentID),
			zap.Error(err),
		)
		r.maybeExpire(ctx, intent, rec)
		return
	}

	switch outcome.State {
	case settlement.OutcomeConfirmed:
		r.advance(ctx, intent, rec, models.StatusConfirmed)
	case settlement.OutcomeFailed:
		telemetry.Logger.Warn("Settlement reported failed",
			zap.String("payment_id", intent.PaymentID),
			zap.String("reason", outcome.Reason),
		)
		r.advance(ctx, intent, rec, models.StatusFailed)
	default:
		r.maybeExpire(ctx, intent, rec)
	}
}

func (r *Reconciler) outcome(ctx context.Context, intent settlement.Intent) (settlement.Outcome, error) {
	switch intent.Kind {
	case settlement.IntentMint:
		return r.minter.MintStatus(ctx, intent.Handle)
	case settlement.IntentWithdraw:
		return r.minter.WithdrawalStatus(ctx, intent.Handle)
	}
	return settlement.Outcome{}, errors.New("unknown intent kind " + string(intent.Kind))
}

// advance applies the terminal status optimistically against the version
// just read. A conflict means another writer interleaved; the next sweep
// re-reads and settles it.
func (r *Reconciler) advance(ctx context.Context, intent settlement.Intent, rec models.PaymentRequest, to models.PaymentStatus) {
	err := r.store.UpdateStatusVersioned(ctx, intent.PaymentID, to, rec.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return
	}
	if err != nil {
		telemetry.Logger.Error("Reconcile transition rejected",
			zap.String("payment_id", intent.PaymentID),
			zap.String("to_status", string(to)),
			zap.Error(err),
		)
		r.intents.Resolve(intent.PaymentID)
		return
	}

	r.intents.Resolve(intent.PaymentID)
	r.pub.PublishStatusChange(ctx, intent.PaymentID, models.StatusPending, to)
	telemetry.StatusTransitions.WithLabelValues(string(to)).Inc()
	telemetry.Logger.Info("Payment reconciled",
		zap.String("payment_id", intent.PaymentID),
		zap.String("kind", string(intent.Kind)),
		zap.String("status", string(to)),
	)
}

// maybeExpire forces an unresolved Pending record to Failed once the intent
// exceeded the bounded wait.
func (r *Reconciler) maybeExpire(ctx context.Context, intent settlement.Intent, rec models.PaymentRequest) {
	if time.Since(intent.CreatedAt) < r.maxWait {
		return
	}
	telemetry.Logger.Warn("Settlement timed out, failing payment",
		zap.String("payment_id", intent.PaymentID),
		zap.Duration("waited", time.Since(intent.CreatedAt)),
	)
	r.advance(ctx, intent, rec, models.StatusFailed)
}
