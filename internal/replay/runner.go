package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairpool/internal/bank"
	"pairpool/internal/event"
	"pairpool/internal/oracle"
	"pairpool/internal/pool"
	"pairpool/internal/registry"
)

// Router is the authorized caller identity the runner uses for every
// state-mutating pool operation.
var Router = common.HexToAddress("0x0000000000000000000000000000000000001001")

// BorrowerAddress is the identity of the built-in flash borrower. Fund
// it in the scenario so it can cover loan fees.
var BorrowerAddress = common.HexToAddress("0x0000000000000000000000000000000000001002")

// simEpoch anchors the simulated clock so scenarios are deterministic.
const simEpoch = 1_700_000_000

// RunConfig holds runtime settings for scenario replay.
type RunConfig struct {
	InputPath         string
	CheckpointPath    string
	CheckpointEnabled bool
	CheckpointEvery   int
}

// Runner replays an operations file against a fresh bank and pool
// registry, acting as the authorized router. Failed operations are
// rolled back in full, logged, and skipped; the scenario keeps going,
// which mirrors how the on-ledger original treats a reverted
// transaction.
type Runner struct {
	cfg        RunConfig
	bank       *bank.Bank
	registry   *registry.Registry
	sink       event.Sink
	logger     *zap.Logger
	checkpoint *CheckpointStore
	clock      time.Time

	// firstSample holds each pool's oracle sample taken right after its
	// first provision, when the cumulative sums are still zero.
	firstSample map[common.Address]oracle.Sample
}

// NewRunner builds a Runner with its dependencies. The registry it
// creates runs on the runner's simulated clock.
func NewRunner(cfg RunConfig, sink event.Sink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = event.NopSink{}
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100
	}

	r := &Runner{
		cfg:        cfg,
		bank:       bank.NewBank(),
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		clock:      time.Unix(simEpoch, 0).UTC(),

		firstSample: make(map[common.Address]oracle.Sample),
	}

	reg, err := registry.New(registry.Config{
		Bank:              r.bank,
		AuthorizedCallers: []common.Address{Router},
		Sink:              sink,
		Logger:            logger,
		Now:               func() time.Time { return r.clock },
	})
	if err != nil {
		return nil, err
	}
	r.registry = reg
	return r, nil
}

// Registry exposes the pools built by the replay, for post-run
// inspection and metadata export.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Bank exposes the ledger the replay ran against.
func (r *Runner) Bank() *bank.Bank { return r.bank }

// TWAPReport is one pool's time-weighted average prices over the window
// from its first provision to its last reserve sync.
type TWAPReport struct {
	Pool    common.Address
	AssetA  common.Address
	AssetB  common.Address
	PriceA  *big.Float // average price of assetA in assetB
	PriceB  *big.Float
	Seconds uint32
}

// TWAPReports computes average prices for every pool whose accumulator
// advanced at least one second since its first provision.
func (r *Runner) TWAPReports() []TWAPReport {
	var out []TWAPReport
	for _, p := range r.registry.Pools() {
		earlier, ok := r.firstSample[p.Address()]
		if !ok {
			continue
		}
		later := oracle.Capture(p)
		avgA, avgB, err := oracle.TWAP(earlier, later)
		if err != nil {
			continue
		}
		assetA, assetB := p.Assets()
		out = append(out, TWAPReport{
			Pool:    p.Address(),
			AssetA:  assetA,
			AssetB:  assetB,
			PriceA:  oracle.PriceToFloat(avgA),
			PriceB:  oracle.PriceToFloat(avgB),
			Seconds: later.Timestamp - earlier.Timestamp,
		})
	}
	return out
}

// Run executes the scenario file.
func (r *Runner) Run(ctx context.Context) error {
	file, err := os.Open(r.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	var startIdx uint64
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			startIdx = cp.LastAppliedOp
			r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", startIdx))
		}
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var idx, applied, skipped, failed uint64
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		idx++

		if idx <= startIdx {
			skipped++
			continue
		}

		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			failed++
			r.logger.Warn("decode op", zap.Uint64("idx", idx), zap.Error(err))
			continue
		}

		// Each op is its own journal frame: hand-off transfers made ahead
		// of a failing pool call must not stay behind as donations.
		rev := r.bank.Snapshot()
		if err := r.apply(op); err != nil {
			r.bank.RevertToSnapshot(rev)
			failed++
			r.logger.Warn("apply op", zap.Uint64("idx", idx), zap.String("op", op.Kind), zap.Error(err))
			continue
		}
		r.bank.Commit(rev)
		applied++

		if applied%uint64(r.cfg.CheckpointEvery) == 0 {
			if err := r.checkpoint.Save(idx); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if err := r.checkpoint.Save(idx); err != nil {
		return err
	}

	r.logger.Info("replay complete",
		zap.Uint64("total", idx),
		zap.Uint64("applied", applied),
		zap.Uint64("skipped", skipped),
		zap.Uint64("failed", failed),
	)
	return nil
}

func (r *Runner) apply(op Op) error {
	switch op.Kind {
	case OpRegisterAsset:
		asset, err := parseAddress(op.Asset)
		if err != nil {
			return err
		}
		return r.bank.RegisterAsset(asset, op.Symbol, op.FeeBps)

	case OpFund:
		asset, err := parseAddress(op.Asset)
		if err != nil {
			return err
		}
		to, err := parseAddress(op.To)
		if err != nil {
			return err
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		return r.bank.Mint(asset, to, amount)

	case OpCreatePool:
		assetA, assetB, err := parsePair(op)
		if err != nil {
			return err
		}
		_, err = r.registry.CreatePool(assetA, assetB)
		return err

	case OpProvide:
		p, err := r.lookupPool(op)
		if err != nil {
			return err
		}
		to, err := parseAddress(op.To)
		if err != nil {
			return err
		}
		amountA, err := parseAmount(op.AmountA)
		if err != nil {
			return err
		}
		amountB, err := parseAmount(op.AmountB)
		if err != nil {
			return err
		}
		if _, err := p.ProvideLiquidity(Router, to, amountA, amountB); err != nil {
			return err
		}
		if _, ok := r.firstSample[p.Address()]; !ok {
			r.firstSample[p.Address()] = oracle.Capture(p)
		}
		return nil

	case OpWithdraw:
		p, err := r.lookupPool(op)
		if err != nil {
			return err
		}
		to, err := parseAddress(op.To)
		if err != nil {
			return err
		}
		shares, err := parseAmount(op.Shares)
		if err != nil {
			return err
		}
		// Two-phase hand-off: move the shares into the pool, then burn.
		// A failed burn hands them back.
		shareRev := p.Shares().Snapshot()
		if err := p.Shares().Transfer(Router, p.Address(), shares); err != nil {
			return err
		}
		if _, _, err := p.WithdrawLiquidity(Router, to); err != nil {
			p.Shares().RevertToSnapshot(shareRev)
			return err
		}
		p.Shares().Commit(shareRev)
		return nil

	case OpSwap:
		p, err := r.lookupPool(op)
		if err != nil {
			return err
		}
		to, err := parseAddress(op.To)
		if err != nil {
			return err
		}
		assetA, assetB := p.Assets()
		if op.AmountAIn != "" {
			amountAIn, err := parseAmount(op.AmountAIn)
			if err != nil {
				return err
			}
			if err := r.bank.Transfer(assetA, Router, p.Address(), amountAIn); err != nil {
				return err
			}
		}
		if op.AmountBIn != "" {
			amountBIn, err := parseAmount(op.AmountBIn)
			if err != nil {
				return err
			}
			if err := r.bank.Transfer(assetB, Router, p.Address(), amountBIn); err != nil {
				return err
			}
		}
		amountAOut, err := parseAmount(op.AmountAOut)
		if err != nil {
			return err
		}
		amountBOut, err := parseAmount(op.AmountBOut)
		if err != nil {
			return err
		}
		return p.Swap(Router, to, amountAOut, amountBOut, nil, nil)

	case OpFlashLoan:
		p, err := r.lookupPool(op)
		if err != nil {
			return err
		}
		asset, err := parseAddress(op.Asset)
		if err != nil {
			return err
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		borrower := &repayingBorrower{bank: r.bank, pool: p.Address()}
		return p.FlashLoan(Router, borrower, asset, amount, nil)

	case OpForceSync:
		p, err := r.lookupPool(op)
		if err != nil {
			return err
		}
		return p.ForceSync(Router)

	case OpAdvanceTime:
		if op.Seconds == 0 {
			return fmt.Errorf("advance_time: seconds required")
		}
		r.clock = r.clock.Add(time.Duration(op.Seconds) * time.Second)
		return nil

	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

func (r *Runner) lookupPool(op Op) (*pool.Pool, error) {
	assetA, assetB, err := parsePair(op)
	if err != nil {
		return nil, err
	}
	p, ok := r.registry.Pool(assetA, assetB)
	if !ok {
		return nil, fmt.Errorf("no pool for pair %s/%s", op.AssetA, op.AssetB)
	}
	return p, nil
}

// repayingBorrower is the runner's built-in flash borrower: it repays
// principal plus fee out of its own pre-funded balance.
type repayingBorrower struct {
	bank *bank.Bank
	pool common.Address
}

func (b *repayingBorrower) Address() common.Address { return BorrowerAddress }

func (b *repayingBorrower) OnFlashLoan(_, asset common.Address, amount, fee *big.Int, _ []byte) (common.Hash, error) {
	owed := new(big.Int).Add(amount, fee)
	if err := b.bank.Transfer(asset, BorrowerAddress, b.pool, owed); err != nil {
		return common.Hash{}, err
	}
	return pool.FlashLoanSentinel, nil
}

func parsePair(op Op) (common.Address, common.Address, error) {
	assetA, err := parseAddress(op.AssetA)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	assetB, err := parseAddress(op.AssetB)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return assetA, assetB, nil
}

func parseAddress(value string) (common.Address, error) {
	switch value {
	case "router":
		return Router, nil
	case "borrower":
		return BorrowerAddress, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address: %q", value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return parsed, nil
}
