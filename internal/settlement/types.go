package settlement

import (
	"context"

	"github.com/0xMgwan/BTCx/internal/models"
)

// Oracle is the Bitcoin address/UTXO service. All three calls are pure
// queries with no side effects on payment state; failures are transient and
// safe to retry.
type Oracle interface {
	// DeriveAddress is deterministic: the same payer always maps to the
	// same deposit address.
	DeriveAddress(ctx context.Context, payer string) (string, error)
	ListUTXOs(ctx context.Context, address string) ([]models.UTXO, error)
	FeePercentiles(ctx context.Context) ([]uint64, error)
}

// TransferArgs parameterize a ledger transfer. Nonce deduplicates retried
// attempts on the ledger side: retrying with the same nonce cannot move
// funds twice.
type TransferArgs struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Nonce  string `json:"nonce"`
}

// Ledger is the token-transfer service. Transfer is not idempotent by
// itself; errors come back as *LedgerError.
type Ledger interface {
	BalanceOf(ctx context.Context, account string) (uint64, error)
	Transfer(ctx context.Context, args TransferArgs) (blockHeight uint64, err error)
}

type DepositAddress struct {
	Address          string `json:"address"`
	MinConfirmations uint32 `json:"min_confirmations"`
}

type WithdrawalFee struct {
	NetworkFee uint64 `json:"network_fee"`
	MinterFee  uint64 `json:"minter_fee"`
}

// Handle is an opaque reference to an initiated mint or withdrawal. The
// minter only ever promises to track the operation; a terminal outcome is
// observed later by polling.
type Handle struct {
	ID string `json:"id"`
}

type OutcomeState string

const (
	OutcomePending   OutcomeState = "pending"
	OutcomeConfirmed OutcomeState = "confirmed"
	OutcomeFailed    OutcomeState = "failed"
)

// Outcome is the externally observed state of an initiated settlement.
type Outcome struct {
	State         OutcomeState `json:"state"`
	Confirmations uint32       `json:"confirmations"`
	TxID          string       `json:"txid,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// Minter credits and debits the ledger against native-chain deposits and
// withdrawals. Errors come back as *MinterError.
type Minter interface {
	GetDepositAddress(ctx context.Context, account string) (DepositAddress, error)
	EstimateWithdrawalFee(ctx context.Context, amount uint64) (WithdrawalFee, error)

	// InitiateMint asks the minter to scan the payer's deposit address
	// and credit the ledger once confirmations suffice. It initiates
	// tracking only.
	InitiateMint(ctx context.Context, account string) (Handle, error)
	MintStatus(ctx context.Context, h Handle) (Outcome, error)

	// Withdraw initiates an on-chain payout and returns a handle, not a
	// confirmation.
	Withdraw(ctx context.Context, address string, amount uint64) (Handle, error)
	WithdrawalStatus(ctx context.Context, h Handle) (Outcome, error)
}
