package natsrpc

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0xMgwan/BTCx/internal/settlement"
)

// Ledger implements settlement.Ledger over the ledger.* subjects.
type Ledger struct {
	client
}

func NewLedger(nc *nats.Conn, timeout time.Duration) *Ledger {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Ledger{client{nc: nc, timeout: timeout}}
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var out struct {
		Balance uint64 `json:"balance"`
	}
	svcErr, err := l.call(ctx, "ledger.balance", map[string]string{"account": account}, &out)
	if err != nil {
		return 0, &settlement.LedgerError{Code: settlement.LedgerTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return 0, ledgerError(svcErr)
	}
	return out.Balance, nil
}

func (l *Ledger) Transfer(ctx context.Context, args settlement.TransferArgs) (uint64, error) {
	var out struct {
		BlockHeight uint64 `json:"block_height"`
	}
	svcErr, err := l.call(ctx, "ledger.transfer", args, &out)
	if err != nil {
		// The transfer may or may not have landed. The nonce in args makes a
		// retry safe: a landed original comes back as Duplicate.
		return 0, &settlement.LedgerError{Code: settlement.LedgerTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return 0, ledgerError(svcErr)
	}
	return out.BlockHeight, nil
}

func ledgerError(e *errEnvelope) *settlement.LedgerError {
	le := &settlement.LedgerError{Err: errors.New(e.Message)}
	switch e.Kind {
	case "InsufficientFunds":
		le.Code = settlement.LedgerInsufficientFunds
	case "BadFee":
		le.Code = settlement.LedgerBadFee
	case "TooOld":
		le.Code = settlement.LedgerTooOld
	case "CreatedInFuture":
		le.Code = settlement.LedgerCreatedInFuture
	case "TemporarilyUnavailable":
		le.Code = settlement.LedgerTemporarilyUnavailable
	case "Duplicate":
		le.Code = settlement.LedgerDuplicate
		le.DuplicateOf = e.DuplicateOf
	default:
		le.Code = settlement.LedgerGeneric
	}
	return le
}
