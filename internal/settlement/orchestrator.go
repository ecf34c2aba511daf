package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

var (
	ErrNotPending           = errors.New("payment is not pending")
	ErrSettlementInProgress = errors.New("payment settlement already in progress")
	ErrIntentOutstanding    = errors.New("payment already has an outstanding settlement")
)

// Orchestrator issues the external settlement calls and translates their
// results into store mutations. It is the only writer that drives
// Pending -> Confirmed automatically.
type Orchestrator struct {
	store   *store.PaymentStore
	oracle  Oracle
	ledger  Ledger
	minter  Minter
	intents *IntentRegistry
	rdb     *redis.Client
	pub     events.Publisher

	// locks holds one mutex per payment id; it grows with the store,
	// which never deletes records either.
	locks sync.Map

	retryInitial time.Duration
	retryMax     uint64
}

func NewOrchestrator(
	st *store.PaymentStore,
	oracle Oracle,
	ledger Ledger,
	minter Minter,
	intents *IntentRegistry,
	rdb *redis.Client,
	pub events.Publisher,
	retryInitial time.Duration,
	retryMax uint64,
) *Orchestrator {
	return &Orchestrator{
		store:        st,
		oracle:       oracle,
		ledger:       ledger,
		minter:       minter,
		intents:      intents,
		rdb:          rdb,
		pub:          pub,
		retryInitial: retryInitial,
		retryMax:     retryMax,
	}
}

// retry runs fn, retrying with exponential backoff while the error is a
// transient external failure, up to the configured attempt cap. Everything
// else is surfaced immediately.
func (o *Orchestrator) retry(ctx context.Context, service string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retryInitial

	attempts := o.retryMax
	if attempts == 0 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		telemetry.ExternalRetries.WithLabelValues(service).Inc()
		return err
	}, policy)
}

// DepositAddress resolves the payer's stable deposit address.
func (o *Orchestrator) DepositAddress(ctx context.Context, payer string) (string, error) {
	var addr string
	err := o.retry(ctx, "oracle", func() error {
		a, err := o.oracle.DeriveAddress(ctx, payer)
		if err != nil {
			return err
		}
		addr = a
		return nil
	})
	return addr, err
}

// UTXOs lists the payer's unspent outputs as reported by the oracle right
// now; nothing is cached.
func (o *Orchestrator) UTXOs(ctx context.Context, payer string) ([]models.UTXO, error) {
	addr, err := o.DepositAddress(ctx, payer)
	if err != nil {
		return nil, err
	}
	var utxos []models.UTXO
	err = o.retry(ctx, "oracle", func() error {
		us, err := o.oracle.ListUTXOs(ctx, addr)
		if err != nil {
			return err
		}
		utxos = us
		return nil
	})
	return utxos, err
}

// Balance is the sum of the payer's unspent outputs.
func (o *Orchestrator) Balance(ctx context.Context, payer string) (uint64, error) {
	utxos, err := o.UTXOs(ctx, payer)
	if err != nil {
		return 0, err
	}
	return models.SumValue(utxos), nil
}

func (o *Orchestrator) FeePercentiles(ctx context.Context) ([]uint64, error) {
	var fees []uint64
	err := o.retry(ctx, "oracle", func() error {
		fs, err := o.oracle.FeePercentiles(ctx)
		if err != nil {
			return err
		}
		fees = fs
		return nil
	})
	return fees, err
}

// LedgerBalance reads the payer's synthetic-token balance.
func (o *Orchestrator) LedgerBalance(ctx context.Context, payer string) (uint64, error) {
	var balance uint64
	err := o.retry(ctx, "ledger", func() error {
		b, err := o.ledger.BalanceOf(ctx, payer)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	return balance, err
}

// MintDepositAddress resolves the minter-side deposit address for a payer,
// including how many confirmations the minter requires before crediting.
func (o *Orchestrator) MintDepositAddress(ctx context.Context, payer string) (DepositAddress, error) {
	var dep DepositAddress
	err := o.retry(ctx, "minter", func() error {
		d, err := o.minter.GetDepositAddress(ctx, payer)
		if err != nil {
			return err
		}
		dep = d
		return nil
	})
	return dep, err
}

func (o *Orchestrator) WithdrawalFee(ctx context.Context, amount uint64) (WithdrawalFee, error) {
	var fee WithdrawalFee
	err := o.retry(ctx, "minter", func() error {
		f, err := o.minter.EstimateWithdrawalFee(ctx, amount)
		if err != nil {
			return err
		}
		fee = f
		return nil
	})
	return fee, err
}

// SettleTransfer moves the payment amount from the payer to the recipient on
// the ledger and confirms the record. One nonce is minted per invocation and
// reused across backoff retries, so the ledger can deduplicate; a Duplicate
// response therefore means the original attempt landed and is treated as
// success.
func (o *Orchestrator) SettleTransfer(ctx context.Context, paymentID string) (uint64, error) {
	unlock, err := o.lock(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	// Read under the lock: a concurrent settlement that already confirmed
	// this record must be visible before we touch the ledger.
	rec, err := o.store.Get(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	if rec.Status != models.StatusPending {
		return 0, ErrNotPending
	}

	nonce := uuid.New().String()
	args := TransferArgs{
		From:   rec.Payer,
		To:     rec.Recipient,
		Amount: rec.Amount,
		Nonce:  nonce,
	}

	var height uint64
	err = o.retry(ctx, "ledger", func() error {
		h, err := o.ledger.Transfer(ctx, args)
		if err != nil {
			var le *LedgerError
			if errors.As(err, &le) && le.Code == LedgerDuplicate {
				height = le.DuplicateOf
				return nil
			}
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		telemetry.Logger.Warn("Ledger transfer failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return 0, err
	}

	if err := o.confirm(ctx, paymentID, rec.Version); err != nil {
		return 0, err
	}

	telemetry.Logger.Info("Payment settled via ledger transfer",
		zap.String("payment_id", paymentID),
		zap.Uint64("block_height", height),
		zap.String("nonce", nonce),
	)
	return height, nil
}

// SettleMint asks the minter to track the payer's deposit address and credit
// the ledger once confirmations suffice. The record stays Pending until the
// reconciler observes a terminal outcome.
func (o *Orchestrator) SettleMint(ctx context.Context, paymentID string) (Handle, error) {
	return o.initiate(ctx, paymentID, IntentMint, func(rec models.PaymentRequest) (Handle, error) {
		return o.minter.InitiateMint(ctx, rec.Payer)
	})
}

// SettleWithdraw initiates an on-chain payout of the payment amount to the
// recipient address. Like SettleMint, this only starts tracking.
func (o *Orchestrator) SettleWithdraw(ctx context.Context, paymentID string) (Handle, error) {
	return o.initiate(ctx, paymentID, IntentWithdraw, func(rec models.PaymentRequest) (Handle, error) {
		return o.minter.Withdraw(ctx, rec.Recipient, rec.Amount)
	})
}

func (o *Orchestrator) initiate(ctx context.Context, paymentID string, kind IntentKind, call func(models.PaymentRequest) (Handle, error)) (Handle, error) {
	unlock, err := o.lock(ctx, paymentID)
	if err != nil {
		return Handle{}, err
	}
	defer unlock()

	// Both checks run under the lock so a second caller cannot slip past
	// them and hand the minter an orphaned operation.
	rec, err := o.store.Get(ctx, paymentID)
	if err != nil {
		return Handle{}, err
	}
	if rec.Status != models.StatusPending {
		return Handle{}, ErrNotPending
	}
	if _, outstanding := o.intents.Get(paymentID); outstanding {
		return Handle{}, ErrIntentOutstanding
	}

	var handle Handle
	err = o.retry(ctx, "minter", func() error {
		h, err := call(rec)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return Handle{}, err
	}

	registered := o.intents.Register(Intent{
		PaymentID:     paymentID,
		Kind:          kind,
		Handle:        handle,
		Nonce:         uuid.New().String(),
		CreatedAt:     time.Now(),
		RecordVersion: rec.Version,
	})
	if !registered {
		return Handle{}, ErrIntentOutstanding
	}

	telemetry.Logger.Info("Settlement initiated",
		zap.String("payment_id", paymentID),
		zap.String("kind", string(kind)),
		zap.String("handle", handle.ID),
	)
	return handle, nil
}

// confirm applies Pending -> Confirmed with the version read before the
// external call. If another writer got there first and the record is already
// Confirmed, that is the outcome we wanted.
func (o *Orchestrator) confirm(ctx context.Context, paymentID string, version uint64) error {
	err := o.store.UpdateStatusVersioned(ctx, paymentID, models.StatusConfirmed, version)
	if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrIllegalTransition) {
		cur, getErr := o.store.Get(ctx, paymentID)
		if getErr == nil && cur.Status == models.StatusConfirmed {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.pub.PublishStatusChange(ctx, paymentID, models.StatusPending, models.StatusConfirmed)
	telemetry.StatusTransitions.WithLabelValues(string(models.StatusConfirmed)).Inc()
	return nil
}

// lock takes the per-payment processing lock: an in-process mutex always,
// plus the Redis SetNX lock when configured so concurrent instances exclude
// each other too. Contention is reported, not waited out.
func (o *Orchestrator) lock(ctx context.Context, paymentID string) (func(), error) {
	v, _ := o.locks.LoadOrStore(paymentID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrSettlementInProgress
	}

	if o.rdb == nil {
		return mu.Unlock, nil
	}
	key := fmt.Sprintf("settle_lock:%s", paymentID)
	ok, err := o.rdb.SetNX(ctx, key, "1", 30*time.Second).Result()
	if err != nil {
		// Redis being down must not block settlements; the local mutex
		// still excludes callers within this instance.
		telemetry.Logger.Warn("Settlement lock unavailable", zap.Error(err))
		return mu.Unlock, nil
	}
	if !ok {
		mu.Unlock()
		return nil, ErrSettlementInProgress
	}
	return func() {
		o.rdb.Del(context.Background(), key)
		mu.Unlock()
	}, nil
}

// Intent exposes the outstanding settlement for a payment, if any.
func (o *Orchestrator) Intent(paymentID string) (Intent, bool) {
	return o.intents.Get(paymentID)
}
