package pool

import "errors"

// Every failure a pool operation can surface is one of these named
// conditions. Operations wrap them with context via fmt.Errorf("%w");
// callers branch with errors.Is.
var (
	ErrInvalidAssetPair         = errors.New("invalid asset pair")
	ErrUnauthorized             = errors.New("caller not authorized")
	ErrInvalidRecipient         = errors.New("invalid recipient")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrInsufficientInputAmount  = errors.New("insufficient input amount")
	ErrInsufficientSharesMinted = errors.New("insufficient shares minted")
	ErrInsufficientSharesBurned = errors.New("insufficient shares burned")
	ErrInvariantViolated        = errors.New("constant product invariant violated")
	ErrReserveOverflow          = errors.New("reserve exceeds 112-bit bound")
	ErrUnsupportedAsset         = errors.New("unsupported asset")
	ErrCallbackFailed           = errors.New("receiver callback failed")
	ErrReentrantCall            = errors.New("reentrant call")
)
