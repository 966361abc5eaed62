package api

import (
	"errors"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LedgerNamespace is the namespace the asset ledger API is registered under.
const LedgerNamespace = "ledger"

// LedgerAPI implements the ledger namespace over an in-memory bank.
type LedgerAPI struct {
	bank *ledger.Bank
}

// NewLedgerAPI creates the ledger namespace service.
func NewLedgerAPI(bank *ledger.Bank) (*LedgerAPI, error) {
	if bank == nil {
		return nil, errors.New("config: Bank cannot be nil")
	}
	return &LedgerAPI{bank: bank}, nil
}

func (api *LedgerAPI) Assets() []tokenregistry.Token {
	return api.bank.Tokens()
}

func (api *LedgerAPI) BalanceOf(asset, account common.Address) (*hexutil.Big, error) {
	a, err := api.bank.Get(asset)
	if err != nil {
		return nil, toRPCError(err)
	}
	return ToBig(a.BalanceOf(account)), nil
}

func (api *LedgerAPI) Allowance(asset, owner, spender common.Address) (*hexutil.Big, error) {
	a, err := api.bank.Get(asset)
	if err != nil {
		return nil, toRPCError(err)
	}
	return ToBig(a.Allowance(owner, spender)), nil
}

func (api *LedgerAPI) Approve(asset, owner, spender common.Address, amount *hexutil.Big) error {
	a, err := api.bank.Get(asset)
	if err != nil {
		return toRPCError(err)
	}
	v, err := FromBig(amount)
	if err != nil {
		return err
	}
	return toRPCError(a.Approve(owner, spender, v))
}

func (api *LedgerAPI) Transfer(asset, from, to common.Address, amount *hexutil.Big) error {
	a, err := api.bank.Get(asset)
	if err != nil {
		return toRPCError(err)
	}
	v, err := FromBig(amount)
	if err != nil {
		return err
	}
	return toRPCError(a.Transfer(from, to, v))
}
