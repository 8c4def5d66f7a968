package model

// Operation kinds recorded in the journal.
const (
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSwap            = "swap"
)

// OperationRecord is one applied ledger operation as journaled to JSONL.
// Liquidity operations fill the asset/amount A/B fields; swaps fill the
// in/out fields.
type OperationRecord struct {
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Pair      string `json:"pair"`
	AssetA    string `json:"asset_a,omitempty"`
	AssetB    string `json:"asset_b,omitempty"`
	AmountA   string `json:"amount_a,omitempty"`
	AmountB   string `json:"amount_b,omitempty"`
	Shares    string `json:"shares,omitempty"`
	AssetIn   string `json:"asset_in,omitempty"`
	AssetOut  string `json:"asset_out,omitempty"`
	AmountIn  string `json:"amount_in,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Timestamp int64  `json:"timestamp"`
}
