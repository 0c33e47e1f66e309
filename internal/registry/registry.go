package registry

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"pairpool/internal/bank"
	"pairpool/internal/event"
	"pairpool/internal/pool"
)

// Registry is the pair factory: it creates and indexes exactly one Pool
// per unordered asset pair, ordering the pair deterministically so both
// lookups resolve to the same instance.
type Registry struct {
	mu    sync.RWMutex
	pools map[pairKey]*pool.Pool

	bank       *bank.Bank
	authorized []common.Address
	sink       event.Sink
	logger     *zap.Logger
	now        func() time.Time
}

type pairKey struct {
	assetA common.Address
	assetB common.Address
}

// Config assembles the registry's dependencies. AuthorizedCallers is
// copied into every pool the registry creates.
type Config struct {
	Bank              *bank.Bank
	AuthorizedCallers []common.Address
	Sink              event.Sink
	Logger            *zap.Logger
	Now               func() time.Time
}

func New(cfg Config) (*Registry, error) {
	if cfg.Bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		pools:      make(map[pairKey]*pool.Pool),
		bank:       cfg.Bank,
		authorized: cfg.AuthorizedCallers,
		sink:       cfg.Sink,
		logger:     logger,
		now:        cfg.Now,
	}, nil
}

// OrderAssets returns the pair in canonical byte order.
func OrderAssets(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// PoolAddress derives the deterministic identity of the pool for an
// ordered pair.
func PoolAddress(assetA, assetB common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(assetA.Bytes(), assetB.Bytes())[12:])
}

// CreatePool builds the pool for an asset pair. Identical assets fail
// with ErrInvalidAssetPair; a pair that already has a pool fails rather
// than returning the existing instance.
func (r *Registry) CreatePool(a, b common.Address) (*pool.Pool, error) {
	if a == b {
		return nil, fmt.Errorf("%w: identical assets", pool.ErrInvalidAssetPair)
	}
	assetA, assetB := OrderAssets(a, b)
	key := pairKey{assetA: assetA, assetB: assetB}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[key]; ok {
		return nil, fmt.Errorf("pool for pair %s/%s already exists", assetA.Hex(), assetB.Hex())
	}

	p, err := pool.New(pool.Config{
		Address:           PoolAddress(assetA, assetB),
		AssetA:            assetA,
		AssetB:            assetB,
		Bank:              r.bank,
		AuthorizedCallers: r.authorized,
		Sink:              r.sink,
		Logger:            r.logger,
		Now:               r.now,
	})
	if err != nil {
		return nil, err
	}

	r.pools[key] = p
	r.logger.Info("pool created",
		zap.String("pool", p.Address().Hex()),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
	)
	return p, nil
}

// Pool looks up the pool for a pair in either order.
func (r *Registry) Pool(a, b common.Address) (*pool.Pool, bool) {
	assetA, assetB := OrderAssets(a, b)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[pairKey{assetA: assetA, assetB: assetB}]
	return p, ok
}

// Pools returns every registered pool.
func (r *Registry) Pools() []*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	return out
}

// Infos describes every pool for the metadata store.
func (r *Registry) Infos() []event.PoolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.PoolInfo, 0, len(r.pools))
	for _, p := range r.pools {
		assetA, assetB := p.Assets()
		out = append(out, event.PoolInfo{
			Address: p.Address().Hex(),
			AssetA:  assetA.Hex(),
			AssetB:  assetB.Hex(),
			SymbolA: r.bank.Symbol(assetA),
			SymbolB: r.bank.Symbol(assetB),
		})
	}
	return out
}
