package event

// Kind names for emitted pool events.
const (
	KindMint      = "mint"
	KindBurn      = "burn"
	KindSwap      = "swap"
	KindSync      = "sync"
	KindForceSync = "force_sync"
	KindFlashLoan = "flash_loan"
)

// MintData is the liquidity-provided event payload.
type MintData struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
	Shares  string `json:"shares"`
}

// BurnData is the liquidity-withdrawn event payload.
type BurnData struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
	Shares  string `json:"shares"`
}

// SwapData is the swap-executed event payload.
type SwapData struct {
	Caller     string `json:"caller"`
	To         string `json:"to"`
	AmountAIn  string `json:"amount_a_in"`
	AmountBIn  string `json:"amount_b_in"`
	AmountAOut string `json:"amount_a_out"`
	AmountBOut string `json:"amount_b_out"`
}

// SyncData is emitted whenever tracked reserves move to live balances.
// Forced is distinguished by the event kind, not a payload flag.
type SyncData struct {
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// FlashLoanData is the flash-loan-settled event payload.
type FlashLoanData struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Fee      string `json:"fee"`
}
