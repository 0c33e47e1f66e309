package bank

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank is an in-process multi-asset balance book. Every asset the pools
// touch lives here, keyed by asset identity and holder. Writes between a
// Snapshot and its matching Commit or RevertToSnapshot form one
// operation's journal frame: Commit splices the frame out of the journal
// so the writes are permanent, RevertToSnapshot undoes whatever is still
// journaled. Because committed frames leave the journal, an enclosing
// operation that later aborts cannot undo work an operation on another
// pool already settled.
type Bank struct {
	mu      sync.Mutex
	assets  map[common.Address]*assetState
	journal []journalEntry
}

type assetState struct {
	symbol      string
	transferFee uint32 // bps deducted from every transfer, 0 for standard assets
	balances    map[common.Address]*big.Int
}

type journalEntry struct {
	asset  common.Address
	holder common.Address
	delta  *big.Int // signed change applied to the holder's balance
}

const feeDenominator = 10_000

func NewBank() *Bank {
	return &Bank{assets: make(map[common.Address]*assetState)}
}

// RegisterAsset creates an asset with an optional transfer fee in bps.
// A nonzero fee models fee-on-transfer tokens: the recipient is credited
// amount minus the fee and the fee is burned.
func (b *Bank) RegisterAsset(asset common.Address, symbol string, transferFeeBps uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.assets[asset]; ok {
		return fmt.Errorf("asset %s already registered", asset.Hex())
	}
	if transferFeeBps >= feeDenominator {
		return fmt.Errorf("transfer fee %d bps out of range", transferFeeBps)
	}
	b.assets[asset] = &assetState{
		symbol:      symbol,
		transferFee: transferFeeBps,
		balances:    make(map[common.Address]*big.Int),
	}
	return nil
}

// HasAsset reports whether the asset is registered.
func (b *Bank) HasAsset(asset common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.assets[asset]
	return ok
}

// Symbol returns the registered symbol for an asset, or the hex address
// when the asset is unknown.
func (b *Bank) Symbol(asset common.Address) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.assets[asset]
	if !ok {
		return asset.Hex()
	}
	return state.symbol
}

// BalanceOf returns the holder's balance of an asset. Unknown assets and
// holders read as zero.
func (b *Bank) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.assets[asset]
	if !ok {
		return new(big.Int)
	}
	bal, ok := state.balances[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Mint credits newly created units to a holder.
func (b *Bank) Mint(asset, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.assets[asset]
	if !ok {
		return fmt.Errorf("mint: unknown asset %s", asset.Hex())
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("mint: negative amount")
	}
	b.credit(state, asset, to, amount)
	return nil
}

// Transfer moves amount from one holder to another. For fee-on-transfer
// assets the recipient receives amount minus the fee.
func (b *Bank) Transfer(asset, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.assets[asset]
	if !ok {
		return fmt.Errorf("transfer: unknown asset %s", asset.Hex())
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer: negative amount")
	}

	have := state.balances[from]
	if have == nil || have.Cmp(amount) < 0 {
		return fmt.Errorf("transfer: %s balance too low", state.symbol)
	}

	credited := new(big.Int).Set(amount)
	if state.transferFee > 0 {
		fee := new(big.Int).Mul(amount, big.NewInt(int64(state.transferFee)))
		fee.Div(fee, big.NewInt(feeDenominator))
		credited.Sub(credited, fee)
	}

	b.debit(state, asset, from, amount)
	b.credit(state, asset, to, credited)
	return nil
}

// Snapshot returns a revision id for the current journal position.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.journal)
}

// RevertToSnapshot undoes every write still journaled after the given
// revision, newest first, by subtracting its delta. Writes a nested
// operation committed have already left the journal and survive.
func (b *Bank) RevertToSnapshot(rev int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rev < 0 || rev > len(b.journal) {
		return
	}
	for i := len(b.journal) - 1; i >= rev; i-- {
		entry := b.journal[i]
		state, ok := b.assets[entry.asset]
		if !ok {
			continue
		}
		bal, ok := state.balances[entry.holder]
		if !ok {
			bal = new(big.Int)
		}
		next := new(big.Int).Sub(bal, entry.delta)
		if next.Sign() == 0 {
			delete(state.balances, entry.holder)
		} else {
			state.balances[entry.holder] = next
		}
	}
	b.journal = b.journal[:rev]
}

// Commit makes every write recorded after the revision permanent by
// removing it from the journal, so an enclosing operation's revert can
// no longer undo it.
func (b *Bank) Commit(rev int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rev < 0 || rev > len(b.journal) {
		return
	}
	b.journal = b.journal[:rev]
}

func (b *Bank) credit(state *assetState, asset, holder common.Address, amount *big.Int) {
	bal, ok := state.balances[holder]
	if !ok {
		bal = new(big.Int)
	}
	state.balances[holder] = new(big.Int).Add(bal, amount)
	b.record(asset, holder, new(big.Int).Set(amount))
}

func (b *Bank) debit(state *assetState, asset, holder common.Address, amount *big.Int) {
	state.balances[holder] = new(big.Int).Sub(state.balances[holder], amount)
	b.record(asset, holder, new(big.Int).Neg(amount))
}

func (b *Bank) record(asset, holder common.Address, delta *big.Int) {
	b.journal = append(b.journal, journalEntry{asset: asset, holder: holder, delta: delta})
}
