package constantproduct

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
)

// Codespace scopes the pool error codes.
const Codespace = "pool"

var (
	ErrInvalidAmount                  = errorsmod.Register(Codespace, 2, "amount must be greater than zero")
	ErrInsufficientInitialLiquidity   = errorsmod.Register(Codespace, 3, "insufficient initial liquidity")
	ErrIncorrectLiquidityRatio        = errorsmod.Register(Codespace, 4, "incorrect liquidity ratio")
	ErrInsufficientLiquidityBalance   = errorsmod.Register(Codespace, 5, "withdraw amount exceeds balance of liquidity tokens")
	ErrAmbiguousSwapDirection         = errorsmod.Register(Codespace, 6, "specify the amount to swap for one asset only")
	ErrInsufficientLiquidityForTrade  = errorsmod.Register(Codespace, 7, "insufficient liquidity for trade")
	ErrInsufficientBalanceForSwap     = errorsmod.Register(Codespace, 8, "insufficient balance for swap")
	ErrInsufficientLiquidityMinted    = errorsmod.Register(Codespace, 9, "insufficient liquidity minted")
	ErrInsufficientOutputAmount       = errorsmod.Register(Codespace, 10, "insufficient output amount")
	ErrOverflow                       = errorsmod.Register(Codespace, 11, "arithmetic overflow")
	ErrInsufficientLiquidityAllowance = errorsmod.Register(Codespace, 12, "insufficient liquidity token allowance")
	ErrInvariantViolated              = errorsmod.Register(Codespace, 13, "pool invariant violated")
)

// calcError maps calculator failures onto the pool taxonomy.
func calcError(err error) error {
	switch {
	case errors.Is(err, calculator.ErrOverflow):
		return errorsmod.Wrap(ErrOverflow, err.Error())
	case errors.Is(err, calculator.ErrBelowMinimumLiquidity):
		return errorsmod.Wrap(ErrInsufficientInitialLiquidity, err.Error())
	case errors.Is(err, calculator.ErrAmbiguousDirection):
		return errorsmod.Wrap(ErrAmbiguousSwapDirection, err.Error())
	case errors.Is(err, calculator.ErrInsufficientLiquidity):
		return errorsmod.Wrap(ErrInsufficientLiquidityForTrade, err.Error())
	case errors.Is(err, calculator.ErrInvalidAmount):
		return errorsmod.Wrap(ErrInvalidAmount, err.Error())
	default:
		return errorsmod.Wrap(ErrInvariantViolated, err.Error())
	}
}
