package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairpool/internal/event"
)

// ProvideLiquidity pulls up to the desired amounts from the caller,
// measures what was actually credited (fee-on-transfer assets deliver
// less than requested), and mints shares to `to`. On the first provision
// the minted amount is floor(sqrt(amountA*amountB)) minus
// MinimumLiquidity, which is locked to the burn sink; afterwards the
// tighter-constrained side sets the ratio and any excess of the other
// asset stays in the pool as a donation.
func (p *Pool) ProvideLiquidity(caller, to common.Address, amountADesired, amountBDesired *big.Int) (*big.Int, error) {
	minted := new(big.Int)
	err := p.run(caller, true, func() error {
		if amountADesired.Sign() > 0 {
			if err := p.bank.Transfer(p.assetA, caller, p.address, amountADesired); err != nil {
				return fmt.Errorf("%w: %v", ErrInsufficientInputAmount, err)
			}
		}
		if amountBDesired.Sign() > 0 {
			if err := p.bank.Transfer(p.assetB, caller, p.address, amountBDesired); err != nil {
				return fmt.Errorf("%w: %v", ErrInsufficientInputAmount, err)
			}
		}

		balanceA, balanceB := p.balances()
		amountA := new(big.Int).Sub(balanceA, p.reserveA)
		amountB := new(big.Int).Sub(balanceB, p.reserveB)

		total := p.shares.TotalShares()
		if total.Sign() == 0 {
			product := new(big.Int).Mul(amountA, amountB)
			minted.Sqrt(product)
			minted.Sub(minted, big.NewInt(MinimumLiquidity))
			if minted.Sign() <= 0 {
				return fmt.Errorf("%w: below minimum liquidity", ErrInsufficientSharesMinted)
			}
			if err := p.shares.Mint(BurnSink, big.NewInt(MinimumLiquidity)); err != nil {
				return err
			}
		} else {
			byA := new(big.Int).Mul(amountA, total)
			byA.Div(byA, p.reserveA)
			byB := new(big.Int).Mul(amountB, total)
			byB.Div(byB, p.reserveB)
			if byA.Cmp(byB) < 0 {
				minted.Set(byA)
			} else {
				minted.Set(byB)
			}
			if minted.Sign() <= 0 {
				return ErrInsufficientSharesMinted
			}
		}

		if err := p.shares.Mint(to, minted); err != nil {
			return err
		}

		prevA, prevB := p.reserveA, p.reserveB
		if err := p.update(balanceA, balanceB, prevA, prevB, event.KindSync); err != nil {
			return err
		}
		p.kLast = new(big.Int).Mul(p.reserveA, p.reserveB)

		p.emit(event.KindMint, event.MintData{
			Caller:  caller.Hex(),
			To:      to.Hex(),
			AmountA: amountA.String(),
			AmountB: amountB.String(),
			Shares:  minted.String(),
		})
		p.logger.Debug("liquidity provided",
			zap.String("pool", p.address.Hex()),
			zap.String("shares", minted.String()),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// WithdrawLiquidity redeems every share currently held by the pool
// itself and pays both assets out to `to` pro-rata against live
// balances, so externally donated balance is distributed too. The
// orchestrating caller must have transferred the shares into the pool
// beforehand; the pool does not verify whose they were.
func (p *Pool) WithdrawLiquidity(caller, to common.Address) (*big.Int, *big.Int, error) {
	amountA := new(big.Int)
	amountB := new(big.Int)
	err := p.run(caller, true, func() error {
		held := p.shares.BalanceOf(p.address)
		total := p.shares.TotalShares()
		if held.Sign() == 0 || total.Sign() == 0 {
			return fmt.Errorf("%w: no shares held by pool", ErrInsufficientSharesBurned)
		}

		balanceA, balanceB := p.balances()
		amountA.Mul(held, balanceA)
		amountA.Div(amountA, total)
		amountB.Mul(held, balanceB)
		amountB.Div(amountB, total)
		if amountA.Sign() == 0 || amountB.Sign() == 0 {
			return fmt.Errorf("%w: redeemed amount rounds to zero", ErrInsufficientSharesBurned)
		}

		if err := p.shares.Burn(p.address, held); err != nil {
			return err
		}
		if err := p.bank.Transfer(p.assetA, p.address, to, amountA); err != nil {
			return err
		}
		if err := p.bank.Transfer(p.assetB, p.address, to, amountB); err != nil {
			return err
		}

		balanceA, balanceB = p.balances()
		prevA, prevB := p.reserveA, p.reserveB
		if err := p.update(balanceA, balanceB, prevA, prevB, event.KindSync); err != nil {
			return err
		}
		p.kLast = new(big.Int).Mul(p.reserveA, p.reserveB)

		p.emit(event.KindBurn, event.BurnData{
			Caller:  caller.Hex(),
			To:      to.Hex(),
			AmountA: amountA.String(),
			AmountB: amountB.String(),
			Shares:  held.String(),
		})
		p.logger.Debug("liquidity withdrawn",
			zap.String("pool", p.address.Hex()),
			zap.String("shares", held.String()),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}
