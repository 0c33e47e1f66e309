package pool

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairpool/internal/bank"
	"pairpool/internal/event"
	"pairpool/internal/share"
)

// Fee and policy constants. Numerators are in basis-point style against
// FeeDenominator.
const (
	FeeDenominator    = 10_000
	SwapFeeNumerator  = 30    // 0.30% taken from swap inputs
	FlashFeeNumerator = 9     // 9 bps on flash loan principal
	LoanCapNumerator  = 1_000 // flash loans capped at 10% of live balance

	// MinimumLiquidity is locked to the burn sink on the first provision
	// so the share/reserve ratio is well defined forever after.
	MinimumLiquidity = 1_000
)

// BurnSink receives the permanently unredeemable minimum liquidity.
var BurnSink = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// maxReserve is the 112-bit bound on tracked reserves.
var maxReserve = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))

// Pool is a two-asset constant-product market maker with integrated
// flash lending. It owns a pair of tracked reserves in the bank, the
// share registry for its LP claims, and the cumulative price
// accumulator. All state-mutating entry points run under a non-blocking
// exclusion guard and roll back completely on any error.
type Pool struct {
	address common.Address
	assetA  common.Address // ordered before assetB
	assetB  common.Address

	bank   *bank.Bank
	shares *share.Registry

	// reserveA/B are written only by update.
	reserveA *big.Int
	reserveB *big.Int
	kLast    *big.Int
	prices   priceAccumulator

	authMu     sync.RWMutex
	authorized map[common.Address]struct{}
	locked     atomic.Bool

	seq    uint64
	sink   event.Sink
	logger *zap.Logger
	now    func() time.Time
}

// Config assembles a Pool's dependencies. AssetA must order before
// AssetB byte-wise; the registry takes care of that for callers.
type Config struct {
	Address           common.Address
	AssetA            common.Address
	AssetB            common.Address
	Bank              *bank.Bank
	AuthorizedCallers []common.Address
	Sink              event.Sink
	Logger            *zap.Logger
	Now               func() time.Time
}

func New(cfg Config) (*Pool, error) {
	if cfg.Bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	if cfg.AssetA == cfg.AssetB {
		return nil, fmt.Errorf("%w: identical assets", ErrInvalidAssetPair)
	}
	if bytes.Compare(cfg.AssetA.Bytes(), cfg.AssetB.Bytes()) > 0 {
		return nil, fmt.Errorf("%w: assets out of order", ErrInvalidAssetPair)
	}
	if !cfg.Bank.HasAsset(cfg.AssetA) || !cfg.Bank.HasAsset(cfg.AssetB) {
		return nil, fmt.Errorf("%w: asset not registered", ErrInvalidAssetPair)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p := &Pool{
		address:    cfg.Address,
		assetA:     cfg.AssetA,
		assetB:     cfg.AssetB,
		bank:       cfg.Bank,
		shares:     share.NewRegistry(),
		reserveA:   new(big.Int),
		reserveB:   new(big.Int),
		kLast:      new(big.Int),
		authorized: make(map[common.Address]struct{}),
		sink:       sink,
		logger:     logger,
		now:        now,
	}
	for _, caller := range cfg.AuthorizedCallers {
		p.authorized[caller] = struct{}{}
	}
	return p, nil
}

// Address returns the pool's own identity.
func (p *Pool) Address() common.Address { return p.address }

// Assets returns the ordered asset pair.
func (p *Pool) Assets() (common.Address, common.Address) { return p.assetA, p.assetB }

// Shares exposes the pool's share registry.
func (p *Pool) Shares() *share.Registry { return p.shares }

// Authorize adds a caller to the state-mutating allow list. Safe to call
// concurrently with running operations.
func (p *Pool) Authorize(caller common.Address) {
	p.authMu.Lock()
	defer p.authMu.Unlock()
	p.authorized[caller] = struct{}{}
}

// Reserves returns the tracked reserves and the last update timestamp.
func (p *Pool) Reserves() (*big.Int, *big.Int, uint32) {
	return new(big.Int).Set(p.reserveA), new(big.Int).Set(p.reserveB), p.prices.lastUpdate
}

// CumulativePrices returns the two wrapping price sums as 256-bit values.
func (p *Pool) CumulativePrices() (*big.Int, *big.Int) {
	return p.prices.cumulativeA.ToBig(), p.prices.cumulativeB.ToBig()
}

// KLast returns the reserve product snapshotted after the last
// liquidity-affecting event.
func (p *Pool) KLast() *big.Int { return new(big.Int).Set(p.kLast) }

// run funnels every state-mutating operation through the authorization
// check, the non-blocking exclusion guard, and journaled rollback. A
// caller already inside an operation (a flash borrower re-entering, for
// example) fails with ErrReentrantCall instead of blocking.
func (p *Pool) run(caller common.Address, restricted bool, fn func() error) error {
	if restricted {
		p.authMu.RLock()
		_, ok := p.authorized[caller]
		p.authMu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
		}
	}
	if !p.locked.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	defer p.locked.Store(false)

	bankRev := p.bank.Snapshot()
	shareRev := p.shares.Snapshot()
	saved := p.snapshot()

	if err := fn(); err != nil {
		p.bank.RevertToSnapshot(bankRev)
		p.shares.RevertToSnapshot(shareRev)
		p.restore(saved)
		return err
	}
	// Committing splices this operation's writes out of both journals, so
	// an enclosing operation that later aborts cannot undo settled work on
	// another pool. Writes made outside any operation remain the caller's
	// to commit or revert.
	p.bank.Commit(bankRev)
	p.shares.Commit(shareRev)
	return nil
}

type poolState struct {
	reserveA *big.Int
	reserveB *big.Int
	kLast    *big.Int
	prices   priceAccumulator
	seq      uint64
}

func (p *Pool) snapshot() poolState {
	return poolState{
		reserveA: new(big.Int).Set(p.reserveA),
		reserveB: new(big.Int).Set(p.reserveB),
		kLast:    new(big.Int).Set(p.kLast),
		prices:   p.prices,
		seq:      p.seq,
	}
}

func (p *Pool) restore(s poolState) {
	p.reserveA = s.reserveA
	p.reserveB = s.reserveB
	p.kLast = s.kLast
	p.prices = s.prices
	p.seq = s.seq
}

// update is the only writer of reserveA/B. It bounds the new balances to
// 112 bits, accrues the price accumulator from the previous reserves,
// then moves tracked reserves to the live balances and emits a sync
// event of the given kind.
func (p *Pool) update(balanceA, balanceB, prevReserveA, prevReserveB *big.Int, syncKind string) error {
	if balanceA.Cmp(maxReserve) > 0 || balanceB.Cmp(maxReserve) > 0 {
		return ErrReserveOverflow
	}

	p.prices.advance(prevReserveA, prevReserveB, uint32(p.now().Unix()))

	p.reserveA = new(big.Int).Set(balanceA)
	p.reserveB = new(big.Int).Set(balanceB)

	p.emit(syncKind, event.SyncData{
		ReserveA: p.reserveA.String(),
		ReserveB: p.reserveB.String(),
	})
	return nil
}

// balances reads the pool's live holdings of both assets.
func (p *Pool) balances() (*big.Int, *big.Int) {
	return p.bank.BalanceOf(p.assetA, p.address), p.bank.BalanceOf(p.assetB, p.address)
}

// emit hands an event to the sink. Sink failures are logged, not
// propagated: observability must not roll back a settled operation.
func (p *Pool) emit(kind string, payload any) {
	p.seq++
	record, err := event.Encode(p.address.Hex(), kind, p.seq, uint64(p.now().Unix()), payload)
	if err != nil {
		p.logger.Warn("encode event", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := p.sink.PutEventBatch([]event.Record{record}); err != nil {
		p.logger.Warn("emit event", zap.String("kind", kind), zap.Error(err))
	}
}
