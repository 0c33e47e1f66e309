package replay

// Op is one line of a scenario file. Kind selects the operation; the
// other fields are read as that kind needs them. Address fields accept
// hex addresses or the symbolic names "router" and "borrower".
type Op struct {
	Kind string `json:"op"`

	Asset  string `json:"asset,omitempty"`
	AssetA string `json:"asset_a,omitempty"`
	AssetB string `json:"asset_b,omitempty"`

	Symbol string `json:"symbol,omitempty"`
	FeeBps uint32 `json:"fee_bps,omitempty"`

	To string `json:"to,omitempty"`

	Amount     string `json:"amount,omitempty"`
	AmountA    string `json:"amount_a,omitempty"`
	AmountB    string `json:"amount_b,omitempty"`
	AmountAIn  string `json:"amount_a_in,omitempty"`
	AmountBIn  string `json:"amount_b_in,omitempty"`
	AmountAOut string `json:"amount_a_out,omitempty"`
	AmountBOut string `json:"amount_b_out,omitempty"`
	Shares     string `json:"shares,omitempty"`

	Seconds uint64 `json:"seconds,omitempty"`
}

// Operation kinds accepted by the runner.
const (
	OpRegisterAsset = "register_asset"
	OpFund          = "fund"
	OpCreatePool    = "create_pool"
	OpProvide       = "provide"
	OpWithdraw      = "withdraw"
	OpSwap          = "swap"
	OpFlashLoan     = "flash_loan"
	OpForceSync     = "force_sync"
	OpAdvanceTime   = "advance_time"
)
