package settlement

import (
	"errors"
	"fmt"
)

// ErrOracleUnavailable covers every oracle failure: oracle calls are pure
// queries, so there is nothing to distinguish beyond "retry later".
var ErrOracleUnavailable = errors.New("bitcoin oracle temporarily unavailable")

type LedgerErrCode int

const (
	LedgerGeneric LedgerErrCode = iota
	LedgerInsufficientFunds
	LedgerBadFee
	LedgerTooOld
	LedgerCreatedInFuture
	LedgerTemporarilyUnavailable
	LedgerDuplicate
)

// LedgerError carries the ledger's structured rejection of a transfer.
// Callers distinguish variants with errors.As and the Code field.
type LedgerError struct {
	Code LedgerErrCode

	// DuplicateOf is the block height of the original transfer when
	// Code == LedgerDuplicate.
	DuplicateOf uint64

	Err error
}

func (e *LedgerError) Error() string {
	switch e.Code {
	case LedgerInsufficientFunds:
		return "ledger: insufficient funds"
	case LedgerBadFee:
		return "ledger: bad fee"
	case LedgerTooOld:
		return "ledger: request too old"
	case LedgerCreatedInFuture:
		return "ledger: request created in future"
	case LedgerTemporarilyUnavailable:
		return "ledger: temporarily unavailable"
	case LedgerDuplicate:
		return fmt.Sprintf("ledger: duplicate of transfer at block %d", e.DuplicateOf)
	default:
		return fmt.Sprintf("ledger: transfer failed: %v", e.Err)
	}
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

type MinterErrCode int

const (
	MinterGeneric MinterErrCode = iota
	MinterMalformedAddress
	MinterTemporarilyUnavailable
)

type MinterError struct {
	Code MinterErrCode
	Err  error
}

func (e *MinterError) Error() string {
	switch e.Code {
	case MinterMalformedAddress:
		return "minter: malformed address"
	case MinterTemporarilyUnavailable:
		return "minter: temporarily unavailable"
	default:
		return fmt.Sprintf("minter: %v", e.Err)
	}
}

func (e *MinterError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a transient external failure eligible for
// automatic retry with backoff. Everything else is surfaced to the caller
// as-is.
func Retryable(err error) bool {
	if errors.Is(err, ErrOracleUnavailable) {
		return true
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code == LedgerTemporarilyUnavailable
	}
	var me *MinterError
	if errors.As(err, &me) {
		return me.Code == MinterTemporarilyUnavailable
	}
	return false
}
