package share

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the fungible accounting book for a single pool's liquidity
// shares: holder -> proportional claim, plus the total issued amount.
// The invariant sum(balances) == TotalShares holds across every
// mint/burn/transfer. Like the bank, mutations are journaled as deltas
// between Snapshot and Commit/RevertToSnapshot so the owning pool can
// roll a failed operation back without disturbing committed work.
type Registry struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	total    *big.Int
	journal  []journalEntry
}

type journalEntry struct {
	holder     common.Address
	delta      *big.Int // signed change applied to the holder's shares
	totalDelta *big.Int // signed change applied to the issued total
}

func NewRegistry() *Registry {
	return &Registry{
		balances: make(map[common.Address]*big.Int),
		total:    new(big.Int),
	}
}

// TotalShares returns the sum of all issued shares.
func (r *Registry) TotalShares() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.total)
}

// BalanceOf returns the holder's share balance.
func (r *Registry) BalanceOf(holder common.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Mint issues new shares to a holder.
func (r *Registry) Mint(to common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount.Sign() < 0 {
		return fmt.Errorf("mint shares: negative amount")
	}
	bal, ok := r.balances[to]
	if !ok {
		bal = new(big.Int)
	}
	r.balances[to] = new(big.Int).Add(bal, amount)
	r.total = new(big.Int).Add(r.total, amount)
	r.record(to, new(big.Int).Set(amount), new(big.Int).Set(amount))
	return nil
}

// Burn destroys shares held by a holder.
func (r *Registry) Burn(from common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount.Sign() < 0 {
		return fmt.Errorf("burn shares: negative amount")
	}
	bal, ok := r.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn shares: balance too low")
	}
	r.balances[from] = new(big.Int).Sub(bal, amount)
	r.total = new(big.Int).Sub(r.total, amount)
	r.record(from, new(big.Int).Neg(amount), new(big.Int).Neg(amount))
	return nil
}

// Transfer moves shares between holders.
func (r *Registry) Transfer(from, to common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount.Sign() < 0 {
		return fmt.Errorf("transfer shares: negative amount")
	}
	bal, ok := r.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer shares: balance too low")
	}
	r.balances[from] = new(big.Int).Sub(bal, amount)
	r.record(from, new(big.Int).Neg(amount), new(big.Int))
	toBal, ok := r.balances[to]
	if !ok {
		toBal = new(big.Int)
	}
	r.balances[to] = new(big.Int).Add(toBal, amount)
	r.record(to, new(big.Int).Set(amount), new(big.Int))
	return nil
}

// Snapshot returns a revision id for the current journal position.
func (r *Registry) Snapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.journal)
}

// RevertToSnapshot undoes every mutation still journaled after the
// revision, newest first. Committed mutations have left the journal and
// survive.
func (r *Registry) RevertToSnapshot(rev int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rev < 0 || rev > len(r.journal) {
		return
	}
	for i := len(r.journal) - 1; i >= rev; i-- {
		entry := r.journal[i]
		bal, ok := r.balances[entry.holder]
		if !ok {
			bal = new(big.Int)
		}
		next := new(big.Int).Sub(bal, entry.delta)
		if next.Sign() == 0 {
			delete(r.balances, entry.holder)
		} else {
			r.balances[entry.holder] = next
		}
		r.total = new(big.Int).Sub(r.total, entry.totalDelta)
	}
	r.journal = r.journal[:rev]
}

// Commit makes every mutation recorded after the revision permanent by
// removing it from the journal.
func (r *Registry) Commit(rev int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rev < 0 || rev > len(r.journal) {
		return
	}
	r.journal = r.journal[:rev]
}

func (r *Registry) record(holder common.Address, delta, totalDelta *big.Int) {
	r.journal = append(r.journal, journalEntry{holder: holder, delta: delta, totalDelta: totalDelta})
}
