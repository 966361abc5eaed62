package pairregistry

import errorsmod "cosmossdk.io/errors"

// Codespace scopes the registry error codes.
const Codespace = "registry"

var (
	ErrPairAlreadyExists = errorsmod.Register(Codespace, 2, "trading pair already exists")
	ErrUnknownPool       = errorsmod.Register(Codespace, 3, "pool does not exist")
	ErrIdenticalAssets   = errorsmod.Register(Codespace, 4, "a pair needs two distinct assets")
	ErrCorruptStore      = errorsmod.Register(Codespace, 5, "stored pair record is inconsistent")
)
