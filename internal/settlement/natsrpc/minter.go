package natsrpc

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0xMgwan/BTCx/internal/settlement"
)

// Minter implements settlement.Minter over the minter.* subjects.
type Minter struct {
	client
}

func NewMinter(nc *nats.Conn, timeout time.Duration) *Minter {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Minter{client{nc: nc, timeout: timeout}}
}

func (m *Minter) GetDepositAddress(ctx context.Context, account string) (settlement.DepositAddress, error) {
	var out settlement.DepositAddress
	svcErr, err := m.call(ctx, "minter.deposit_address", map[string]string{"account": account}, &out)
	if err != nil {
		return settlement.DepositAddress{}, &settlement.MinterError{Code: settlement.MinterTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return settlement.DepositAddress{}, minterError(svcErr)
	}
	return out, nil
}

func (m *Minter) EstimateWithdrawalFee(ctx context.Context, amount uint64) (settlement.WithdrawalFee, error) {
	var out settlement.WithdrawalFee
	svcErr, err := m.call(ctx, "minter.estimate_fee", map[string]uint64{"amount": amount}, &out)
	if err != nil {
		return settlement.WithdrawalFee{}, &settlement.MinterError{Code: settlement.MinterTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return settlement.WithdrawalFee{}, minterError(svcErr)
	}
	return out, nil
}

func (m *Minter) InitiateMint(ctx context.Context, account string) (settlement.Handle, error) {
	var out settlement.Handle
	svcErr, err := m.call(ctx, "minter.mint", map[string]string{"account": account}, &out)
	if err != nil {
		return settlement.Handle{}, &settlement.MinterError{Code: settlement.MinterTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return settlement.Handle{}, minterError(svcErr)
	}
	return out, nil
}

func (m *Minter) MintStatus(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	return m.status(ctx, "minter.mint_status", h)
}

func (m *Minter) Withdraw(ctx context.Context, address string, amount uint64) (settlement.Handle, error) {
	var out settlement.Handle
	req := map[string]any{"address": address, "amount": amount}
	svcErr, err := m.call(ctx, "minter.withdraw", req, &out)
	if err != nil {
		return settlement.Handle{}, &settlement.MinterError{Code: settlement.MinterTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return settlement.Handle{}, minterError(svcErr)
	}
	return out, nil
}

func (m *Minter) WithdrawalStatus(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	return m.status(ctx, "minter.withdrawal_status", h)
}

func (m *Minter) status(ctx context.Context, subject string, h settlement.Handle) (settlement.Outcome, error) {
	var out settlement.Outcome
	svcErr, err := m.call(ctx, subject, h, &out)
	if err != nil {
		return settlement.Outcome{}, &settlement.MinterError{Code: settlement.MinterTemporarilyUnavailable, Err: err}
	}
	if svcErr != nil {
		return settlement.Outcome{}, minterError(svcErr)
	}
	return out, nil
}

func minterError(e *errEnvelope) *settlement.MinterError {
	me := &settlement.MinterError{Err: errors.New(e.Message)}
	switch e.Kind {
	case "MalformedAddress":
		me.Code = settlement.MinterMalformedAddress
	case "TemporarilyUnavailable":
		me.Code = settlement.MinterTemporarilyUnavailable
	default:
		me.Code = settlement.MinterGeneric
	}
	return me
}
