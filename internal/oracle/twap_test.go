package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pairpool/internal/bank"
	"pairpool/internal/pool"
)

var (
	assetX   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetY   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	poolAddr = common.HexToAddress("0x0000000000000000000000000000000000000901")
	router   = common.HexToAddress("0x0000000000000000000000000000000000001001")
)

func TestTWAPAcrossAccumulatorWraparound(t *testing.T) {
	// The cumulative sums wrap mod 2^256. A window that straddles the
	// wrap must still average correctly: later - earlier underflows back
	// to the true delta.
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	earlier := Sample{
		CumulativeA: new(big.Int).Sub(mod, big.NewInt(50)),
		CumulativeB: big.NewInt(0),
		Timestamp:   1000,
	}
	later := Sample{
		CumulativeA: big.NewInt(150), // wrapped past zero: true delta is 200
		CumulativeB: big.NewInt(400),
		Timestamp:   1100,
	}

	avgA, avgB, err := TWAP(earlier, later)
	if err != nil {
		t.Fatalf("twap: %v", err)
	}
	if avgA.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("avgA = %s, want 2", avgA)
	}
	if avgB.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("avgB = %s, want 4", avgB)
	}
}

func TestTWAPAcrossTimestampWraparound(t *testing.T) {
	earlier := Sample{
		CumulativeA: big.NewInt(0),
		CumulativeB: big.NewInt(0),
		Timestamp:   ^uint32(0) - 49, // fifty seconds before the uint32 rollover
	}
	later := Sample{
		CumulativeA: big.NewInt(1000),
		CumulativeB: big.NewInt(2000),
		Timestamp:   50,
	}

	avgA, avgB, err := TWAP(earlier, later)
	if err != nil {
		t.Fatalf("twap: %v", err)
	}
	// Wrapped elapsed is 100 seconds.
	if avgA.Cmp(big.NewInt(10)) != 0 || avgB.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("avg = %s/%s, want 10/20", avgA, avgB)
	}
}

func TestTWAPRejectsZeroWindow(t *testing.T) {
	s := Sample{CumulativeA: big.NewInt(0), CumulativeB: big.NewInt(0), Timestamp: 7}
	if _, _, err := TWAP(s, s); err == nil {
		t.Fatalf("expected zero-window error")
	}
}

func TestCaptureAndTWAPOnLivePool(t *testing.T) {
	b := bank.NewBank()
	if err := b.RegisterAsset(assetX, "X", 0); err != nil {
		t.Fatalf("register X: %v", err)
	}
	if err := b.RegisterAsset(assetY, "Y", 0); err != nil {
		t.Fatalf("register Y: %v", err)
	}
	supply := new(big.Int).Lsh(big.NewInt(1), 60)
	if err := b.Mint(assetX, router, supply); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := b.Mint(assetY, router, supply); err != nil {
		t.Fatalf("fund: %v", err)
	}

	clock := time.Unix(1_700_000_000, 0).UTC()
	p, err := pool.New(pool.Config{
		Address:           poolAddr,
		AssetA:            assetX,
		AssetB:            assetY,
		Bank:              b,
		AuthorizedCallers: []common.Address{router},
		Now:               func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	// 4:1 reserves: asset X is worth 0.25 Y, asset Y is worth 4 X.
	if _, err := p.ProvideLiquidity(router, router, big.NewInt(4_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("provide: %v", err)
	}

	first := Capture(p)
	clock = clock.Add(200 * time.Second)
	if err := p.ForceSync(router); err != nil {
		t.Fatalf("force sync: %v", err)
	}
	second := Capture(p)

	avgA, avgB, err := TWAP(first, second)
	if err != nil {
		t.Fatalf("twap: %v", err)
	}
	wantA := new(big.Int).Rsh(new(big.Int).Lsh(big.NewInt(1), 112), 2) // 0.25
	wantB := new(big.Int).Lsh(big.NewInt(4), 112)
	if avgA.Cmp(wantA) != 0 {
		t.Fatalf("avgA = %s, want %s", avgA, wantA)
	}
	if avgB.Cmp(wantB) != 0 {
		t.Fatalf("avgB = %s, want %s", avgB, wantB)
	}

	// Display conversion.
	f, _ := PriceToFloat(avgB).Float64()
	if f != 4.0 {
		t.Fatalf("PriceToFloat(avgB) = %v, want 4", f)
	}
}
