package model

// PoolSnapshot is the JSON representation of one pool's accounting state.
// Amounts are decimal strings to survive any JSON number width.
type PoolSnapshot struct {
	Pair        string         `json:"pair"`
	Asset0      string         `json:"asset0"`
	Asset1      string         `json:"asset1"`
	Reserve0    string         `json:"reserve0"`
	Reserve1    string         `json:"reserve1"`
	TotalShares string         `json:"total_shares"`
	Balances    []ShareBalance `json:"balances,omitempty"`
}

// ShareBalance is one holder's claim on a pair.
type ShareBalance struct {
	Pair   string `json:"pair"`
	Holder string `json:"holder"`
	Shares string `json:"shares"`
}
