package models

// UTXO is an unspent output reported by the Bitcoin oracle. It is read on
// demand and never persisted; spend tracking stays with the oracle.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Height uint32 `json:"height"`
}

// SumValue is the balance of an address as the sum of its unspent outputs.
func SumValue(utxos []UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
