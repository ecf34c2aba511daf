// Package mock provides controllable in-memory implementations of the
// settlement ports, used by tests and by local runs without external
// services configured.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/settlement"
)

// Oracle is a fake Bitcoin oracle. Addresses derive deterministically from
// the payer; UTXO sets are injected by tests.
type Oracle struct {
	mu          sync.Mutex
	utxos       map[string][]models.UTXO
	percentiles []uint64
	unavailable bool
}

func NewOracle() *Oracle {
	return &Oracle{
		utxos:       make(map[string][]models.UTXO),
		percentiles: []uint64{1000, 2000, 3000, 5000, 8000},
	}
}

func (o *Oracle) DeriveAddress(ctx context.Context, payer string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unavailable {
		return "", settlement.ErrOracleUnavailable
	}
	sum := sha256.Sum256([]byte(payer))
	return "tb1q" + hex.EncodeToString(sum[:16]), nil
}

func (o *Oracle) ListUTXOs(ctx context.Context, address string) ([]models.UTXO, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unavailable {
		return nil, settlement.ErrOracleUnavailable
	}
	return append([]models.UTXO(nil), o.utxos[address]...), nil
}

func (o *Oracle) FeePercentiles(ctx context.Context) ([]uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unavailable {
		return nil, settlement.ErrOracleUnavailable
	}
	return append([]uint64(nil), o.percentiles...), nil
}

// AddUTXO credits an address with an unspent output.
func (o *Oracle) AddUTXO(address string, u models.UTXO) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.utxos[address] = append(o.utxos[address], u)
}

// SetUnavailable toggles transient failure of every oracle call.
func (o *Oracle) SetUnavailable(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable = v
}

// Ledger is a fake token ledger with balances, nonce deduplication and
// scriptable failures.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]uint64
	byNonce  map[string]uint64
	height   uint64
	failNext []*settlement.LedgerError
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]uint64),
		byNonce:  make(map[string]uint64),
		height:   100,
	}
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Transfer applies the ledger semantics the orchestrator has to cope with:
// nonce replays return Duplicate with the original block height, scripted
// errors fire first, and insufficient funds reject without moving anything.
func (l *Ledger) Transfer(ctx context.Context, args settlement.TransferArgs) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.failNext) > 0 {
		err := l.failNext[0]
		l.failNext = l.failNext[1:]
		return 0, err
	}

	if h, seen := l.byNonce[args.Nonce]; seen {
		return 0, &settlement.LedgerError{Code: settlement.LedgerDuplicate, DuplicateOf: h}
	}

	if l.balances[args.From] < args.Amount {
		return 0, &settlement.LedgerError{Code: settlement.LedgerInsufficientFunds}
	}

	l.balances[args.From] -= args.Amount
	l.balances[args.To] += args.Amount
	l.height++
	l.byNonce[args.Nonce] = l.height
	return l.height, nil
}

// SetBalance seeds an account.
func (l *Ledger) SetBalance(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = amount
}

// FailNext queues an error to be returned by the next Transfer calls, in
// order, before normal processing resumes.
func (l *Ledger) FailNext(errs ...*settlement.LedgerError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = append(l.failNext, errs...)
}

// Minter is a fake minter whose initiated operations stay pending until a
// test resolves them.
type Minter struct {
	mu         sync.Mutex
	feeRate    decimal.Decimal
	networkFee uint64
	seq        int
	outcomes   map[string]settlement.Outcome
	failNext   []*settlement.MinterError
}

func NewMinter() *Minter {
	return &Minter{
		feeRate:    decimal.RequireFromString("0.002"),
		networkFee: 2000,
		outcomes:   make(map[string]settlement.Outcome),
	}
}

func (m *Minter) GetDepositAddress(ctx context.Context, account string) (settlement.DepositAddress, error) {
	sum := sha256.Sum256([]byte("minter:" + account))
	return settlement.DepositAddress{
		Address:          "tb1q" + hex.EncodeToString(sum[:16]),
		MinConfirmations: 6,
	}, nil
}

// EstimateWithdrawalFee charges a flat network fee plus feeRate of the
// amount, rounded down to whole satoshis.
func (m *Minter) EstimateWithdrawalFee(ctx context.Context, amount uint64) (settlement.WithdrawalFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	minterFee := m.feeRate.Mul(decimal.NewFromUint64(amount)).Floor()
	return settlement.WithdrawalFee{
		NetworkFee: m.networkFee,
		MinterFee:  uint64(minterFee.IntPart()),
	}, nil
}

func (m *Minter) InitiateMint(ctx context.Context, account string) (settlement.Handle, error) {
	return m.initiate("mint")
}

func (m *Minter) Withdraw(ctx context.Context, address string, amount uint64) (settlement.Handle, error) {
	if address == "" {
		return settlement.Handle{}, &settlement.MinterError{Code: settlement.MinterMalformedAddress}
	}
	return m.initiate("wd")
}

func (m *Minter) initiate(prefix string) (settlement.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return settlement.Handle{}, err
	}

	m.seq++
	h := settlement.Handle{ID: fmt.Sprintf("%s-%d", prefix, m.seq)}
	m.outcomes[h.ID] = settlement.Outcome{State: settlement.OutcomePending}
	return h, nil
}

func (m *Minter) MintStatus(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	return m.status(h)
}

func (m *Minter) WithdrawalStatus(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	return m.status(h)
}

func (m *Minter) status(h settlement.Handle) (settlement.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, ok := m.outcomes[h.ID]
	if !ok {
		return settlement.Outcome{}, &settlement.MinterError{Code: settlement.MinterGeneric, Err: fmt.Errorf("unknown handle %s", h.ID)}
	}
	return out, nil
}

// Resolve sets the externally observed outcome of an initiated operation.
func (m *Minter) Resolve(h settlement.Handle, out settlement.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[h.ID] = out
}

// SetFeeRate overrides the proportional minter fee.
func (m *Minter) SetFeeRate(rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeRate = rate
}

// FailNext queues errors for upcoming InitiateMint/Withdraw calls.
func (m *Minter) FailNext(errs ...*settlement.MinterError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}
