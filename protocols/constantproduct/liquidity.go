package constantproduct

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Liquidity is a pool-scoped fungible ledger of liquidity tokens.
// The sum of all balances always equals the total supply.
type Liquidity struct {
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

func newLiquidity() *Liquidity {
	return &Liquidity{
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (l *Liquidity) TotalSupply() *uint256.Int {
	return l.totalSupply.Clone()
}

func (l *Liquidity) BalanceOf(account common.Address) *uint256.Int {
	return l.balanceOf(account).Clone()
}

func (l *Liquidity) Allowance(owner, spender common.Address) *uint256.Int {
	if spenders, ok := l.allowances[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return v.Clone()
		}
	}
	return new(uint256.Int)
}

// mint assumes the caller has already checked that the supply cannot overflow.
func (l *Liquidity) mint(to common.Address, amount *uint256.Int) {
	l.totalSupply = new(uint256.Int).Add(l.totalSupply, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
}

func (l *Liquidity) burn(from common.Address, amount *uint256.Int) error {
	balance := l.balanceOf(from)
	if balance.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientLiquidityBalance, "%s holds %s, burning %s", from.Hex(), balance.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.totalSupply = new(uint256.Int).Sub(l.totalSupply, amount)
	return nil
}

func (l *Liquidity) transfer(from, to common.Address, amount *uint256.Int) error {
	balance := l.balanceOf(from)
	if balance.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientLiquidityBalance, "%s holds %s, sending %s", from.Hex(), balance.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
	return nil
}

func (l *Liquidity) approve(owner, spender common.Address, amount *uint256.Int) {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amount.Clone()
}

func (l *Liquidity) transferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	allowed := l.Allowance(owner, spender)
	if allowed.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientLiquidityAllowance, "%s may spend %s of %s, needs %s", spender.Hex(), allowed.Dec(), owner.Hex(), amount.Dec())
	}
	if err := l.transfer(owner, to, amount); err != nil {
		return err
	}
	if !amount.IsZero() {
		l.allowances[owner][spender] = allowed.Sub(allowed, amount)
	}
	return nil
}

// sum adds up every balance; used by invariant checks.
func (l *Liquidity) sum() *uint256.Int {
	total := new(uint256.Int)
	for _, balance := range l.balances {
		total.Add(total, balance)
	}
	return total
}

func (l *Liquidity) balanceOf(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
