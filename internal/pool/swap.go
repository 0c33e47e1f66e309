package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairpool/internal/event"
)

// SwapReceiver is the optional flash-swap callback: it runs after the
// requested outputs have been optimistically transferred and before the
// inputs are measured, and is expected to arrange payment.
type SwapReceiver interface {
	OnSwap(caller common.Address, amountAOut, amountBOut *big.Int, data []byte) error
}

// Swap transfers the requested outputs to `to` first, then measures the
// live balances to infer what was actually paid in, and accepts the
// trade only if the fee-adjusted constant product did not shrink. One
// output is nonzero in the ordinary case; both may be set for flash
// swaps, with receiver arranging repayment inside its callback.
func (p *Pool) Swap(caller, to common.Address, amountAOut, amountBOut *big.Int, receiver SwapReceiver, data []byte) error {
	return p.run(caller, true, func() error {
		if amountAOut.Sign() <= 0 && amountBOut.Sign() <= 0 {
			return ErrInsufficientOutputAmount
		}
		if to == (common.Address{}) || to == p.assetA || to == p.assetB {
			return fmt.Errorf("%w: %s", ErrInvalidRecipient, to.Hex())
		}
		if amountAOut.Cmp(p.reserveA) >= 0 || amountBOut.Cmp(p.reserveB) >= 0 {
			return fmt.Errorf("%w: output exceeds reserves", ErrInsufficientLiquidity)
		}

		// Optimistic transfer: outputs leave before inputs are measured.
		if amountAOut.Sign() > 0 {
			if err := p.bank.Transfer(p.assetA, p.address, to, amountAOut); err != nil {
				return err
			}
		}
		if amountBOut.Sign() > 0 {
			if err := p.bank.Transfer(p.assetB, p.address, to, amountBOut); err != nil {
				return err
			}
		}
		if receiver != nil {
			if err := receiver.OnSwap(caller, amountAOut, amountBOut, data); err != nil {
				return fmt.Errorf("%w: %v", ErrCallbackFailed, err)
			}
		}

		balanceA, balanceB := p.balances()
		amountAIn := inferInput(balanceA, p.reserveA, amountAOut)
		amountBIn := inferInput(balanceB, p.reserveB, amountBOut)
		if amountAIn.Sign() == 0 && amountBIn.Sign() == 0 {
			return ErrInsufficientInputAmount
		}

		// (balanceA*D - inA*F) * (balanceB*D - inB*F) >= reserveA * reserveB * D^2
		denom := big.NewInt(FeeDenominator)
		feeNum := big.NewInt(SwapFeeNumerator)

		adjustedA := new(big.Int).Mul(balanceA, denom)
		adjustedA.Sub(adjustedA, new(big.Int).Mul(amountAIn, feeNum))
		adjustedB := new(big.Int).Mul(balanceB, denom)
		adjustedB.Sub(adjustedB, new(big.Int).Mul(amountBIn, feeNum))

		lhs := new(big.Int).Mul(adjustedA, adjustedB)
		rhs := new(big.Int).Mul(p.reserveA, p.reserveB)
		rhs.Mul(rhs, denom)
		rhs.Mul(rhs, denom)
		if lhs.Cmp(rhs) < 0 {
			return ErrInvariantViolated
		}

		prevA, prevB := p.reserveA, p.reserveB
		if err := p.update(balanceA, balanceB, prevA, prevB, event.KindSync); err != nil {
			return err
		}

		p.emit(event.KindSwap, event.SwapData{
			Caller:     caller.Hex(),
			To:         to.Hex(),
			AmountAIn:  amountAIn.String(),
			AmountBIn:  amountBIn.String(),
			AmountAOut: amountAOut.String(),
			AmountBOut: amountBOut.String(),
		})
		p.logger.Debug("swap executed",
			zap.String("pool", p.address.Hex()),
			zap.String("a_in", amountAIn.String()),
			zap.String("b_in", amountBIn.String()),
			zap.String("a_out", amountAOut.String()),
			zap.String("b_out", amountBOut.String()),
		)
		return nil
	})
}

// ForceSync is the open-access recovery path: it moves tracked reserves
// to the live balances unconditionally, bypassing the invariant check,
// and emits a distinct event so consumers can tell it from a swap.
func (p *Pool) ForceSync(caller common.Address) error {
	return p.run(caller, false, func() error {
		balanceA, balanceB := p.balances()
		prevA, prevB := p.reserveA, p.reserveB
		return p.update(balanceA, balanceB, prevA, prevB, event.KindForceSync)
	})
}

// inferInput computes balance - (reserve - out), clamped at zero.
func inferInput(balance, reserve, amountOut *big.Int) *big.Int {
	expected := new(big.Int).Sub(reserve, amountOut)
	in := new(big.Int).Sub(balance, expected)
	if in.Sign() < 0 {
		return new(big.Int)
	}
	return in
}
