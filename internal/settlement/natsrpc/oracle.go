package natsrpc

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/settlement"
)

// Oracle implements settlement.Oracle over the oracle.* subjects. Any
// transport or service failure collapses to ErrOracleUnavailable: oracle
// queries are side-effect free and the caller just retries.
type Oracle struct {
	client
}

func NewOracle(nc *nats.Conn, timeout time.Duration) *Oracle {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Oracle{client{nc: nc, timeout: timeout}}
}

func (o *Oracle) DeriveAddress(ctx context.Context, payer string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	svcErr, err := o.call(ctx, "oracle.derive_address", map[string]string{"payer": payer}, &out)
	if err != nil || svcErr != nil {
		return "", settlement.ErrOracleUnavailable
	}
	return out.Address, nil
}

func (o *Oracle) ListUTXOs(ctx context.Context, address string) ([]models.UTXO, error) {
	var out struct {
		UTXOs []models.UTXO `json:"utxos"`
	}
	svcErr, err := o.call(ctx, "oracle.utxos", map[string]string{"address": address}, &out)
	if err != nil || svcErr != nil {
		return nil, settlement.ErrOracleUnavailable
	}
	return out.UTXOs, nil
}

func (o *Oracle) FeePercentiles(ctx context.Context) ([]uint64, error) {
	var out struct {
		Percentiles []uint64 `json:"percentiles"`
	}
	svcErr, err := o.call(ctx, "oracle.fee_percentiles", struct{}{}, &out)
	if err != nil || svcErr != nil {
		return nil, settlement.ErrOracleUnavailable
	}
	return out.Percentiles, nil
}
