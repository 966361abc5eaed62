// Package ledger defines the fungible-asset ledger consumed by pools and ships
// an in-memory implementation used by tests and the bundled daemon.
package ledger

import (
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetLedger holds per-account balances of one fungible asset.
// There is no implicit caller: every mutating method names the account it acts for.
type AssetLedger interface {
	// Token returns the asset's address and display metadata.
	Token() tokenregistry.Token
	BalanceOf(account common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	// Transfer moves amount from one account to another.
	Transfer(from, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount out of owner on behalf of spender, consuming allowance.
	TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error
}

// Directory resolves asset addresses to their ledgers.
type Directory interface {
	Asset(address common.Address) (AssetLedger, error)
}
