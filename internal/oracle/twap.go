package oracle

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"pairpool/internal/pool"
)

// Sample is one observation of a pool's cumulative prices. Two samples
// over a known window are enough to compute the time-weighted average
// price; the cumulative values wrap mod 2^256 and the subtraction below
// wraps the same way, so overflow between the samples cancels out.
type Sample struct {
	CumulativeA *big.Int
	CumulativeB *big.Int
	Timestamp   uint32
}

// Capture reads the pool's current accumulator state.
func Capture(p *pool.Pool) Sample {
	cumA, cumB := p.CumulativePrices()
	_, _, last := p.Reserves()
	return Sample{CumulativeA: cumA, CumulativeB: cumB, Timestamp: last}
}

// TWAP returns the average UQ112.112 prices of each asset in terms of
// the other between two samples. The earlier sample must precede the
// later one by at least one second of accumulator time.
func TWAP(earlier, later Sample) (*big.Int, *big.Int, error) {
	elapsed := later.Timestamp - earlier.Timestamp // uint32 wraparound is intended
	if elapsed == 0 {
		return nil, nil, fmt.Errorf("twap: zero elapsed time between samples")
	}
	avgA := averageDelta(earlier.CumulativeA, later.CumulativeA, elapsed)
	avgB := averageDelta(earlier.CumulativeB, later.CumulativeB, elapsed)
	return avgA, avgB, nil
}

// PriceToFloat converts a UQ112.112 price to a big.Float for display.
func PriceToFloat(price *big.Int) *big.Float {
	scale := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 112))
	return new(big.Float).Quo(new(big.Float).SetInt(price), scale)
}

func averageDelta(earlier, later *big.Int, elapsed uint32) *big.Int {
	a, _ := uint256.FromBig(earlier)
	b, _ := uint256.FromBig(later)
	delta := new(uint256.Int).Sub(b, a) // wraps mod 2^256, cancelling accumulator wraparound
	delta.Div(delta, uint256.NewInt(uint64(elapsed)))
	return delta.ToBig()
}
