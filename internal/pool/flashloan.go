package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"pairpool/internal/event"
)

// FlashLoanSentinel is the value a borrower callback must return to
// prove it understood the loan contract.
var FlashLoanSentinel = crypto.Keccak256Hash([]byte("pairpool.FlashBorrower.onFlashLoan"))

// FlashBorrower receives loaned funds and must arrange repayment of
// principal plus fee into the pool before its callback returns. The
// callback runs while the pool's exclusion guard is held: any attempt to
// re-enter a state-mutating pool operation fails with ErrReentrantCall.
type FlashBorrower interface {
	Address() common.Address
	OnFlashLoan(initiator, asset common.Address, amount, fee *big.Int, data []byte) (common.Hash, error)
}

// MaxFlashLoan returns the pool's live balance of the asset, or zero for
// assets the pool does not hold.
func (p *Pool) MaxFlashLoan(asset common.Address) *big.Int {
	if asset != p.assetA && asset != p.assetB {
		return new(big.Int)
	}
	return p.bank.BalanceOf(asset, p.address)
}

// FlashFee quotes the fee for borrowing amount of the asset.
func (p *Pool) FlashFee(asset common.Address, amount *big.Int) (*big.Int, error) {
	if asset != p.assetA && asset != p.assetB {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset.Hex())
	}
	return flashFee(amount), nil
}

// FlashLoan lends amount of the asset to the receiver for the duration
// of its callback. The loan settles only if the pool's measured balance
// afterwards covers principal plus fee and the reserve product did not
// shrink; the fee is folded into tracked reserves, accruing to all share
// holders. Any failure unwinds the whole loan.
func (p *Pool) FlashLoan(caller common.Address, receiver FlashBorrower, asset common.Address, amount *big.Int, data []byte) error {
	return p.run(caller, true, func() error {
		if asset != p.assetA && asset != p.assetB {
			return fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset.Hex())
		}
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: zero principal", ErrInsufficientLiquidity)
		}

		balanceBefore := p.bank.BalanceOf(asset, p.address)
		cap := new(big.Int).Mul(balanceBefore, big.NewInt(LoanCapNumerator))
		cap.Div(cap, big.NewInt(FeeDenominator))
		if amount.Cmp(balanceBefore) > 0 || amount.Cmp(cap) > 0 {
			return fmt.Errorf("%w: amount exceeds loan cap", ErrInsufficientLiquidity)
		}

		fee := flashFee(amount)

		prevBalanceA, prevBalanceB := p.balances()
		productBefore := new(big.Int).Mul(prevBalanceA, prevBalanceB)

		if err := p.bank.Transfer(asset, p.address, receiver.Address(), amount); err != nil {
			return err
		}

		sentinel, err := receiver.OnFlashLoan(caller, asset, amount, fee, data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCallbackFailed, err)
		}
		if sentinel != FlashLoanSentinel {
			return fmt.Errorf("%w: bad sentinel", ErrCallbackFailed)
		}

		owed := new(big.Int).Add(balanceBefore, fee)
		balanceAfter := p.bank.BalanceOf(asset, p.address)
		if balanceAfter.Cmp(owed) < 0 {
			return fmt.Errorf("%w: loan not repaid", ErrInsufficientLiquidity)
		}

		balanceA, balanceB := p.balances()
		productAfter := new(big.Int).Mul(balanceA, balanceB)
		if productAfter.Cmp(productBefore) < 0 {
			return ErrInvariantViolated
		}

		prevA, prevB := p.reserveA, p.reserveB
		if err := p.update(balanceA, balanceB, prevA, prevB, event.KindSync); err != nil {
			return err
		}

		p.emit(event.KindFlashLoan, event.FlashLoanData{
			Caller:   caller.Hex(),
			Receiver: receiver.Address().Hex(),
			Asset:    asset.Hex(),
			Amount:   amount.String(),
			Fee:      fee.String(),
		})
		p.logger.Debug("flash loan settled",
			zap.String("pool", p.address.Hex()),
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()),
			zap.String("fee", fee.String()),
		)
		return nil
	})
}

func flashFee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(FlashFeeNumerator))
	return fee.Div(fee, big.NewInt(FeeDenominator))
}
