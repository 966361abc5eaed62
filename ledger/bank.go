package ledger

import (
	"errors"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// maxAllowance is treated as an unlimited approval and never decremented.
var maxAllowance = new(uint256.Int).SetAllOne()

// Bank is an in-memory Directory of Asset ledgers. Assets are indexed by
// the ID the token registry assigned them.
type Bank struct {
	mu     sync.RWMutex
	tokens *tokenregistry.Registry
	assets []*Asset
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{tokens: tokenregistry.NewRegistry()}
}

// NewAsset registers a new asset with zero supply.
func (b *Bank) NewAsset(token tokenregistry.Token) (*Asset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	registered, err := b.tokens.Register(token)
	if errors.Is(err, tokenregistry.ErrTokenExists) {
		return nil, errorsmod.Wrap(ErrAssetAlreadyExists, token.Address.Hex())
	}
	if err != nil {
		return nil, err
	}

	asset := &Asset{
		token:       registered,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
	b.assets = append(b.assets, asset)
	return asset, nil
}

// Asset implements Directory.
func (b *Bank) Asset(address common.Address) (AssetLedger, error) {
	a, err := b.Get(address)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns the concrete ledger for address.
func (b *Bank) Get(address common.Address) (*Asset, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	token, ok := b.tokens.GetByAddress(address)
	if !ok {
		return nil, errorsmod.Wrap(ErrUnknownAsset, address.Hex())
	}
	return b.assets[token.ID], nil
}

// Tokens lists the metadata of every asset in registration order.
func (b *Bank) Tokens() []tokenregistry.Token {
	return b.tokens.All()
}

// Asset is an ERC20-shaped ledger for a single asset.
type Asset struct {
	mu          sync.RWMutex
	token       tokenregistry.Token
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

func (a *Asset) Token() tokenregistry.Token {
	return a.token
}

func (a *Asset) TotalSupply() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalSupply.Clone()
}

func (a *Asset) BalanceOf(account common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balanceOf(account).Clone()
}

func (a *Asset) Allowance(owner, spender common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allowance(owner, spender).Clone()
}

// Mint credits amount to account and grows the total supply.
func (a *Asset) Mint(to common.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(a.totalSupply, amount)
	if overflow {
		return errorsmod.Wrapf(ErrSupplyOverflow, "minting %s %s", amount.Dec(), a.token.Symbol)
	}
	a.totalSupply = supply
	a.balances[to] = new(uint256.Int).Add(a.balanceOf(to), amount)
	return nil
}

// Approve sets the amount spender may move out of owner.
func (a *Asset) Approve(owner, spender common.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	spenders, ok := a.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		a.allowances[owner] = spenders
	}
	spenders[spender] = amount.Clone()
	return nil
}

func (a *Asset) Transfer(from, to common.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.move(from, to, amount)
}

func (a *Asset) TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	allowed := a.allowance(owner, spender)
	if allowed.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientAllowance,
			"%s may spend %s %s of %s, needs %s", spender.Hex(), allowed.Dec(), a.token.Symbol, owner.Hex(), amount.Dec())
	}
	if err := a.move(owner, to, amount); err != nil {
		return err
	}
	if !amount.IsZero() && !allowed.Eq(maxAllowance) {
		a.allowances[owner][spender] = new(uint256.Int).Sub(allowed, amount)
	}
	return nil
}

// move must be called with the write lock held.
func (a *Asset) move(from, to common.Address, amount *uint256.Int) error {
	balance := a.balanceOf(from)
	if balance.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientBalance,
			"%s holds %s %s, needs %s", from.Hex(), balance.Dec(), a.token.Symbol, amount.Dec())
	}
	a.balances[from] = new(uint256.Int).Sub(balance, amount)
	a.balances[to] = new(uint256.Int).Add(a.balanceOf(to), amount)
	return nil
}

func (a *Asset) balanceOf(account common.Address) *uint256.Int {
	if b, ok := a.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (a *Asset) allowance(owner, spender common.Address) *uint256.Int {
	if spenders, ok := a.allowances[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return v
		}
	}
	return new(uint256.Int)
}
