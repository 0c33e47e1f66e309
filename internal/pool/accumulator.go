package pool

import (
	"math/big"

	"github.com/holiman/uint256"
)

// priceAccumulator keeps the two cumulative price sums consumed by
// external TWAP oracles. Prices are UQ112.112 fixed point: the opposite
// reserve shifted up 112 bits and divided by the own reserve, multiplied
// by elapsed seconds. All arithmetic is mod 2^256 on purpose — consumers
// difference two samples over a known window and wraparound cancels.
// Saturating or checked arithmetic here would be a correctness bug.
type priceAccumulator struct {
	cumulativeA uint256.Int
	cumulativeB uint256.Int
	lastUpdate  uint32
}

const uq112Shift = 112

// advance accrues elapsed-weighted prices from the previous reserves.
// Reserves of zero or zero elapsed time leave the sums untouched; the
// timestamp always moves.
func (a *priceAccumulator) advance(prevReserveA, prevReserveB *big.Int, now uint32) {
	elapsed := now - a.lastUpdate // uint32 wraparound is intended
	if elapsed > 0 && prevReserveA.Sign() > 0 && prevReserveB.Sign() > 0 {
		e := uint256.NewInt(uint64(elapsed))

		priceA := encodeUQ112(prevReserveB, prevReserveA)
		priceA.Mul(priceA, e)
		a.cumulativeA.Add(&a.cumulativeA, priceA)

		priceB := encodeUQ112(prevReserveA, prevReserveB)
		priceB.Mul(priceB, e)
		a.cumulativeB.Add(&a.cumulativeB, priceB)
	}
	a.lastUpdate = now
}

// encodeUQ112 returns (numerator << 112) / denominator. Both inputs are
// bounded to 112 bits by the reserve overflow check, so the shifted
// numerator fits in 224 bits.
func encodeUQ112(numerator, denominator *big.Int) *uint256.Int {
	n, _ := uint256.FromBig(numerator)
	d, _ := uint256.FromBig(denominator)
	n.Lsh(n, uq112Shift)
	return n.Div(n, d)
}
