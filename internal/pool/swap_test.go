package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pairpool/internal/event"
)

// payIn moves an input amount from the router into the pool ahead of a
// swap call, the way the external router orchestrates a trade.
func (f *fixture) payIn(t *testing.T, asset common.Address, amount int64) {
	t.Helper()
	if err := f.bank.Transfer(asset, router, poolAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("pay in: %v", err)
	}
}

func TestSwapAcceptsFeeCoveredTrade(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	f.payIn(t, assetX, 111_000)
	err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(90_000), nil, nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	reserveA, reserveB, _ := f.pool.Reserves()
	if reserveA.Cmp(big.NewInt(1_111_000)) != 0 || reserveB.Cmp(big.NewInt(910_000)) != 0 {
		t.Fatalf("reserves = %s/%s, want 1111000/910000", reserveA, reserveB)
	}
	if got := f.bank.BalanceOf(assetY, trader); got.Cmp(big.NewInt(90_000)) != 0 {
		t.Fatalf("trader received %s, want 90000", got)
	}
	// Product grew: the fee stays in reserves.
	k := new(big.Int).Mul(reserveA, reserveB)
	if k.Cmp(new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000))) < 0 {
		t.Fatalf("product shrank: %s", k)
	}
}

func TestSwapInvariantBoundary(t *testing.T) {
	// For reserves 1e6/1e6 and 90000 out of Y, the minimum input of X
	// that satisfies the fee-adjusted product check is 99199.
	cases := []struct {
		name    string
		inX     int64
		wantErr error
	}{
		{"just below", 99_198, ErrInvariantViolated},
		{"exact minimum", 99_199, nil},
		{"comfortable", 111_000, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.provide(t, 1_000_000, 1_000_000)

			f.payIn(t, assetX, tc.inX)
			err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(90_000), nil, nil)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("swap: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSwapRejectsZeroOutput(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	err := f.pool.Swap(router, trader, new(big.Int), new(big.Int), nil, nil)
	if !errors.Is(err, ErrInsufficientOutputAmount) {
		t.Fatalf("err = %v, want ErrInsufficientOutputAmount", err)
	}
}

func TestSwapRejectsBadRecipients(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	for _, to := range []common.Address{{}, assetX, assetY} {
		err := f.pool.Swap(router, to, new(big.Int), big.NewInt(1000), nil, nil)
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Fatalf("to=%s: err = %v, want ErrInvalidRecipient", to.Hex(), err)
		}
	}
}

func TestSwapRejectsOutputAtReserve(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(1_000_000), nil, nil)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestSwapRejectsNoInput(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(1000), nil, nil)
	if !errors.Is(err, ErrInsufficientInputAmount) {
		t.Fatalf("err = %v, want ErrInsufficientInputAmount", err)
	}
}

func TestFailedSwapRollsBackOptimisticTransfer(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	f.payIn(t, assetX, 10) // far too little for 90000 out
	err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(90_000), nil, nil)
	if !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("err = %v, want ErrInvariantViolated", err)
	}

	// The optimistically transferred output came back.
	if got := f.bank.BalanceOf(assetY, trader); got.Sign() != 0 {
		t.Fatalf("trader balance = %s, want 0", got)
	}
	reserveA, reserveB, _ := f.pool.Reserves()
	if reserveA.Cmp(big.NewInt(1_000_000)) != 0 || reserveB.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("reserves = %s/%s, want unchanged", reserveA, reserveB)
	}
}

func TestSwapMeasuresFeeOnTransferCredit(t *testing.T) {
	// Asset Y deducts 1% on every transfer. The pool must validate
	// against what it actually received, not what was sent.
	f := newFixture(t, 100)

	// Bootstrap: 1e6 Y sent, 990000 credited.
	minted, err := f.pool.ProvideLiquidity(router, router, big.NewInt(1_000_000), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	// floor(sqrt(1e6 * 990000)) - 1000
	if minted.Cmp(big.NewInt(993_987)) != 0 {
		t.Fatalf("minted = %s, want 993987", minted)
	}

	// 100000 Y sent in, 99000 credited; 80000 X out clears the check
	// against the measured credit.
	if err := f.bank.Transfer(assetY, router, poolAddr, big.NewInt(100_000)); err != nil {
		t.Fatalf("pay in: %v", err)
	}
	if err := f.pool.Swap(router, trader, big.NewInt(80_000), new(big.Int), nil, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	reserveA, reserveB, _ := f.pool.Reserves()
	if reserveA.Cmp(big.NewInt(920_000)) != 0 || reserveB.Cmp(big.NewInt(1_089_000)) != 0 {
		t.Fatalf("reserves = %s/%s, want 920000/1089000", reserveA, reserveB)
	}
}

type recordingReceiver struct {
	called bool
	fail   bool
}

func (r *recordingReceiver) OnSwap(_ common.Address, _, _ *big.Int, _ []byte) error {
	r.called = true
	if r.fail {
		return errors.New("receiver declined")
	}
	return nil
}

func TestSwapReceiverCallback(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	receiver := &recordingReceiver{}
	f.payIn(t, assetX, 111_000)
	if err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(90_000), receiver, []byte("x")); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !receiver.called {
		t.Fatalf("receiver was not invoked")
	}
}

func TestSwapReceiverFailureAborts(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	receiver := &recordingReceiver{fail: true}
	f.payIn(t, assetX, 111_000)
	err := f.pool.Swap(router, trader, new(big.Int), big.NewInt(90_000), receiver, nil)
	if !errors.Is(err, ErrCallbackFailed) {
		t.Fatalf("err = %v, want ErrCallbackFailed", err)
	}
	reserveA, _, _ := f.pool.Reserves()
	if reserveA.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("reserves changed after aborted swap")
	}
}

func TestForceSyncEnforcesReserveBound(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	// A balance of exactly 2^112-1 is still representable.
	toBound := new(big.Int).Sub(maxReserve, big.NewInt(1_000_000))
	if err := f.bank.Mint(assetX, poolAddr, toBound); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if err := f.pool.ForceSync(rando); err != nil {
		t.Fatalf("force sync at bound: %v", err)
	}
	reserveA, _, _ := f.pool.Reserves()
	if reserveA.Cmp(maxReserve) != 0 {
		t.Fatalf("reserveA = %s, want %s", reserveA, maxReserve)
	}

	// One unit over the bound aborts the sync with reserves untouched.
	if err := f.bank.Mint(assetX, poolAddr, big.NewInt(1)); err != nil {
		t.Fatalf("donate: %v", err)
	}
	err := f.pool.ForceSync(rando)
	if !errors.Is(err, ErrReserveOverflow) {
		t.Fatalf("err = %v, want ErrReserveOverflow", err)
	}
	reserveA, _, _ = f.pool.Reserves()
	if reserveA.Cmp(maxReserve) != 0 {
		t.Fatalf("reserveA after failed sync = %s, want %s", reserveA, maxReserve)
	}
}

func TestForceSyncAdoptsDonatedBalance(t *testing.T) {
	f := newFixture(t, 0)
	f.provide(t, 1_000_000, 1_000_000)

	if err := f.bank.Mint(assetX, poolAddr, big.NewInt(5_000)); err != nil {
		t.Fatalf("donate: %v", err)
	}

	// Open access: any caller may force a sync.
	if err := f.pool.ForceSync(rando); err != nil {
		t.Fatalf("force sync: %v", err)
	}

	reserveA, _, _ := f.pool.Reserves()
	if reserveA.Cmp(big.NewInt(1_005_000)) != 0 {
		t.Fatalf("reserveA = %s, want 1005000", reserveA)
	}

	kinds := f.sink.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != event.KindForceSync {
		t.Fatalf("last event = %v, want force_sync", kinds)
	}
}
