package ledger

import errorsmod "cosmossdk.io/errors"

// Codespace scopes the ledger error codes.
const Codespace = "ledger"

var (
	// ErrInsufficientBalance is returned when an account holds less than the amount moved.
	ErrInsufficientBalance = errorsmod.Register(Codespace, 2, "insufficient balance")
	// ErrInsufficientAllowance is returned when a spender was granted less than the amount moved.
	ErrInsufficientAllowance = errorsmod.Register(Codespace, 3, "insufficient allowance")
	// ErrUnknownAsset is returned when no ledger exists for an asset address.
	ErrUnknownAsset = errorsmod.Register(Codespace, 4, "unknown asset")
	// ErrAssetAlreadyExists is returned when an asset address is registered twice.
	ErrAssetAlreadyExists = errorsmod.Register(Codespace, 5, "asset already exists")
	// ErrSupplyOverflow is returned when minting would overflow 256 bits.
	ErrSupplyOverflow = errorsmod.Register(Codespace, 6, "total supply overflow")
)
