// Package constantproduct implements a fee-less two-asset constant-product pool.
//
// A Pool performs no locking of its own. Callers must serialize every call
// against one Pool instance; pairregistry.Registry does this per pair.
package constantproduct

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the construction parameters of a Pool.
type Config struct {
	Address common.Address
	PairID  common.Hash
	AssetA  ledger.AssetLedger
	AssetB  ledger.AssetLedger
	// Events is optional; committed operations are published to it when set.
	Events engine.Publisher
	Logger Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	if c.AssetA == nil {
		return errors.New("config: AssetA cannot be nil")
	}
	if c.AssetB == nil {
		return errors.New("config: AssetB cannot be nil")
	}
	if c.AssetA.Token().Address == c.AssetB.Token().Address {
		return errors.New("config: AssetA and AssetB must differ")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// ExchangeInfo describes the two assets of a pool in its internal order.
type ExchangeInfo struct {
	AssetA tokenregistry.Token `json:"assetA"`
	AssetB tokenregistry.Token `json:"assetB"`
}

// View is a read-only snapshot of a pool's pricing state.
type View struct {
	Address     common.Address `json:"address"`
	PairID      common.Hash    `json:"pairId"`
	AssetA      common.Address `json:"assetA"`
	AssetB      common.Address `json:"assetB"`
	ReserveA    *uint256.Int   `json:"reserveA"`
	ReserveB    *uint256.Int   `json:"reserveB"`
	K           *uint256.Int   `json:"k"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
}

// Pool holds the reserves of one asset pair and issues liquidity tokens against them.
type Pool struct {
	address common.Address
	pairID  common.Hash
	assetA  ledger.AssetLedger
	assetB  ledger.AssetLedger

	reserveA *uint256.Int
	reserveB *uint256.Int
	// k is reserveA*reserveB as of the last deposit or withdrawal; swaps price against it.
	k *uint256.Int

	liquidity *Liquidity
	events    engine.Publisher
	logger    Logger
}

// NewPool creates an empty pool.
func NewPool(cfg *Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		address:   cfg.Address,
		pairID:    cfg.PairID,
		assetA:    cfg.AssetA,
		assetB:    cfg.AssetB,
		reserveA:  new(uint256.Int),
		reserveB:  new(uint256.Int),
		k:         new(uint256.Int),
		liquidity: newLiquidity(),
		events:    cfg.Events,
		logger:    cfg.Logger,
	}, nil
}

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) PairID() common.Hash      { return p.pairID }
func (p *Pool) ReserveA() *uint256.Int   { return p.reserveA.Clone() }
func (p *Pool) ReserveB() *uint256.Int   { return p.reserveB.Clone() }
func (p *Pool) TotalSupply() *uint256.Int {
	return p.liquidity.TotalSupply()
}

// LiquidityOf returns the liquidity-token balance of account.
func (p *Pool) LiquidityOf(account common.Address) *uint256.Int {
	return p.liquidity.BalanceOf(account)
}

// LiquidityAllowance returns how many of owner's liquidity tokens spender may move.
func (p *Pool) LiquidityAllowance(owner, spender common.Address) *uint256.Int {
	return p.liquidity.Allowance(owner, spender)
}

// ExchangeInfo returns the metadata of both assets.
func (p *Pool) ExchangeInfo() ExchangeInfo {
	return ExchangeInfo{AssetA: p.assetA.Token(), AssetB: p.assetB.Token()}
}

// View returns a deep copy of the pool's pricing state.
func (p *Pool) View() View {
	return View{
		Address:     p.address,
		PairID:      p.pairID,
		AssetA:      p.assetA.Token().Address,
		AssetB:      p.assetB.Token().Address,
		ReserveA:    p.reserveA.Clone(),
		ReserveB:    p.reserveB.Clone(),
		K:           p.k.Clone(),
		TotalSupply: p.liquidity.TotalSupply(),
	}
}

func (p *Pool) state() calculator.Reserves {
	return calculator.Reserves{A: p.reserveA, B: p.reserveB, K: p.k}
}

// Deposit pulls amountA and amountB from caller and mints liquidity to recipient.
// The caller must have approved the pool's address on both asset ledgers.
func (p *Pool) Deposit(caller common.Address, amountA, amountB *uint256.Int, recipient common.Address) (*engine.Deposit, error) {
	amountA, amountB = orZero(amountA), orZero(amountB)
	if amountA.IsZero() || amountB.IsZero() {
		return nil, errorsmod.Wrapf(ErrInvalidAmount, "deposit of %s and %s", amountA.Dec(), amountB.Dec())
	}

	supply := p.liquidity.TotalSupply()
	var minted, fromA, fromB *uint256.Int

	if supply.IsZero() {
		m, err := calculator.InitialLiquidity(amountA, amountB)
		if err != nil {
			return nil, calcError(err)
		}
		minted, fromA, fromB = m, m.Clone(), m.Clone()
	} else {
		lhs, overflowL := new(uint256.Int).MulOverflow(amountA, p.reserveB)
		rhs, overflowR := new(uint256.Int).MulOverflow(amountB, p.reserveA)
		if overflowL || overflowR {
			return nil, errorsmod.Wrap(ErrOverflow, "deposit ratio check")
		}
		if !lhs.Eq(rhs) {
			return nil, errorsmod.Wrapf(ErrIncorrectLiquidityRatio,
				"%s:%s does not match reserves %s:%s", amountA.Dec(), amountB.Dec(), p.reserveA.Dec(), p.reserveB.Dec())
		}

		var err error
		fromA, fromB, err = calculator.ProportionalLiquidity(amountA, amountB, p.state(), supply)
		if err != nil {
			return nil, calcError(err)
		}
		minted = minOf(fromA, fromB).Clone()
		if minted.IsZero() {
			return nil, errorsmod.Wrapf(ErrInsufficientLiquidityMinted, "deposit of %s and %s", amountA.Dec(), amountB.Dec())
		}
	}

	newA, overflowA := new(uint256.Int).AddOverflow(p.reserveA, amountA)
	newB, overflowB := new(uint256.Int).AddOverflow(p.reserveB, amountB)
	newSupply, overflowS := new(uint256.Int).AddOverflow(supply, minted)
	if overflowA || overflowB || overflowS {
		return nil, errorsmod.Wrap(ErrOverflow, "deposit exceeds 256-bit reserves")
	}
	k, err := calculator.Invariant(newA, newB)
	if err != nil {
		return nil, calcError(err)
	}

	if err := p.pull(caller, amountA, amountB); err != nil {
		return nil, err
	}

	p.reserveA, p.reserveB, p.k = newA, newB, k
	p.liquidity.mint(recipient, minted)

	ev := &engine.Deposit{
		Initiator:      caller,
		Recipient:      recipient,
		SuppliedA:      amountA.Clone(),
		SuppliedB:      amountB.Clone(),
		NewReserveA:    newA.Clone(),
		NewReserveB:    newB.Clone(),
		MintedFromA:    fromA,
		MintedFromB:    fromB,
		Minted:         minted,
		NewTotalSupply: newSupply,
	}
	p.publish(engine.EventDeposit, ev)
	p.logger.Debug("Liquidity deposited",
		"pool", p.address,
		"initiator", caller,
		"amount_a", amountA.Dec(),
		"amount_b", amountB.Dec(),
		"minted", minted.Dec(),
	)
	return ev, nil
}

// Withdraw burns liquidity from caller and sends the proportional reserves to recipient.
func (p *Pool) Withdraw(caller common.Address, liquidity *uint256.Int, recipient common.Address) (*engine.Withdrawal, error) {
	liquidity = orZero(liquidity)
	if liquidity.IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "withdrawal of zero liquidity")
	}
	if balance := p.liquidity.BalanceOf(caller); balance.Lt(liquidity) {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidityBalance, "%s holds %s, requested %s", caller.Hex(), balance.Dec(), liquidity.Dec())
	}

	supply := p.liquidity.TotalSupply()
	amountA, amountB, err := calculator.ProportionalAmounts(liquidity, p.state(), supply)
	if err != nil {
		return nil, calcError(err)
	}
	if amountA.IsZero() && amountB.IsZero() {
		return nil, errorsmod.Wrapf(ErrInsufficientOutputAmount, "burning %s returns nothing", liquidity.Dec())
	}

	newA := new(uint256.Int).Sub(p.reserveA, amountA)
	newB := new(uint256.Int).Sub(p.reserveB, amountB)
	k, err := calculator.Invariant(newA, newB)
	if err != nil {
		return nil, calcError(err)
	}

	if err := p.push(recipient, amountA, amountB); err != nil {
		return nil, err
	}

	reserveA, reserveB := p.reserveA, p.reserveB
	// the balance check above guarantees the burn succeeds
	if err := p.liquidity.burn(caller, liquidity); err != nil {
		return nil, err
	}
	p.reserveA, p.reserveB, p.k = newA, newB, k

	ev := &engine.Withdrawal{
		Initiator:      caller,
		Recipient:      recipient,
		ReserveA:       reserveA.Clone(),
		ReserveB:       reserveB.Clone(),
		AmountA:        amountA,
		AmountB:        amountB,
		Burned:         liquidity.Clone(),
		NewTotalSupply: p.liquidity.TotalSupply(),
	}
	p.publish(engine.EventWithdrawal, ev)
	p.logger.Debug("Liquidity withdrawn",
		"pool", p.address,
		"initiator", caller,
		"burned", liquidity.Dec(),
		"amount_a", amountA.Dec(),
		"amount_b", amountB.Dec(),
	)
	return ev, nil
}

// QuoteSwap prices a trade without moving any assets.
func (p *Pool) QuoteSwap(amountAIn, amountBIn *uint256.Int) (calculator.SwapResult, error) {
	amountAIn, amountBIn = orZero(amountAIn), orZero(amountBIn)
	if amountAIn.IsZero() == amountBIn.IsZero() {
		return calculator.SwapResult{}, errorsmod.Wrapf(ErrAmbiguousSwapDirection, "inputs %s and %s", amountAIn.Dec(), amountBIn.Dec())
	}

	result, err := calculator.SimulateSwap(amountAIn, amountBIn, p.state())
	if err != nil {
		return calculator.SwapResult{}, calcError(err)
	}
	if result.AmountAOut.IsZero() && result.AmountBOut.IsZero() {
		return calculator.SwapResult{}, errorsmod.Wrap(ErrInsufficientOutputAmount, "trade rounds to zero output")
	}
	return result, nil
}

// Swap trades exactly one nonzero input for the other asset and sends the output to recipient.
func (p *Pool) Swap(caller common.Address, amountAIn, amountBIn *uint256.Int, recipient common.Address) (*engine.Swap, error) {
	amountAIn, amountBIn = orZero(amountAIn), orZero(amountBIn)

	result, err := p.QuoteSwap(amountAIn, amountBIn)
	if err != nil {
		return nil, err
	}

	in, out := p.assetA, p.assetB
	amountIn, amountOut := amountAIn, result.AmountBOut
	if amountAIn.IsZero() {
		in, out = p.assetB, p.assetA
		amountIn, amountOut = amountBIn, result.AmountAOut
	}

	if balance := in.BalanceOf(caller); balance.Lt(amountIn) {
		return nil, errorsmod.Wrapf(ErrInsufficientBalanceForSwap,
			"%s holds %s %s, swapping %s", caller.Hex(), balance.Dec(), in.Token().Symbol, amountIn.Dec())
	}

	if err := in.TransferFrom(p.address, caller, p.address, amountIn); err != nil {
		return nil, err
	}
	if err := out.Transfer(p.address, recipient, amountOut); err != nil {
		p.compensate(in, p.address, caller, amountIn)
		return nil, err
	}

	p.reserveA, p.reserveB = result.Reserves.A, result.Reserves.B

	ev := &engine.Swap{
		Initiator:   caller,
		Recipient:   recipient,
		AmountAIn:   amountAIn.Clone(),
		AmountBIn:   amountBIn.Clone(),
		AmountAOut:  result.AmountAOut,
		AmountBOut:  result.AmountBOut,
		NewReserveA: p.reserveA.Clone(),
		NewReserveB: p.reserveB.Clone(),
	}
	p.publish(engine.EventSwap, ev)
	p.logger.Debug("Swap executed",
		"pool", p.address,
		"initiator", caller,
		"asset_in", in.Token().Symbol,
		"amount_in", amountIn.Dec(),
		"amount_out", amountOut.Dec(),
	)
	return ev, nil
}

// TransferLiquidity moves liquidity tokens between accounts.
func (p *Pool) TransferLiquidity(from, to common.Address, amount *uint256.Int) error {
	return p.liquidity.transfer(from, to, orZero(amount))
}

// ApproveLiquidity lets spender move up to amount of owner's liquidity tokens.
func (p *Pool) ApproveLiquidity(owner, spender common.Address, amount *uint256.Int) {
	p.liquidity.approve(owner, spender, orZero(amount))
}

// TransferLiquidityFrom moves owner's liquidity tokens on behalf of spender.
func (p *Pool) TransferLiquidityFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	return p.liquidity.transferFrom(spender, owner, to, orZero(amount))
}

// CheckInvariants verifies the accounting invariants of the pool:
// balances sum to the supply, a pool with outstanding liquidity holds both
// assets and an empty one holds neither, and each reserve is backed by the
// pool's ledger balance.
func (p *Pool) CheckInvariants() error {
	supply := p.liquidity.TotalSupply()
	if sum := p.liquidity.sum(); !sum.Eq(supply) {
		return errorsmod.Wrapf(ErrInvariantViolated, "liquidity balances sum to %s, supply is %s", sum.Dec(), supply.Dec())
	}
	emptyReserves := p.reserveA.IsZero() && p.reserveB.IsZero()
	drained := p.reserveA.IsZero() || p.reserveB.IsZero()
	if supply.IsZero() != emptyReserves || (!supply.IsZero() && drained) {
		return errorsmod.Wrapf(ErrInvariantViolated, "supply %s with reserves %s:%s", supply.Dec(), p.reserveA.Dec(), p.reserveB.Dec())
	}
	if held := p.assetA.BalanceOf(p.address); held.Lt(p.reserveA) {
		return errorsmod.Wrapf(ErrInvariantViolated, "reserve A %s exceeds ledger balance %s", p.reserveA.Dec(), held.Dec())
	}
	if held := p.assetB.BalanceOf(p.address); held.Lt(p.reserveB) {
		return errorsmod.Wrapf(ErrInvariantViolated, "reserve B %s exceeds ledger balance %s", p.reserveB.Dec(), held.Dec())
	}
	return nil
}

// pull moves both deposit legs from caller into the pool. Balances and
// allowances are checked up front so that a failure never leaves one leg applied;
// if the ledger still rejects the second leg the first is returned.
func (p *Pool) pull(caller common.Address, amountA, amountB *uint256.Int) error {
	for _, leg := range []struct {
		asset  ledger.AssetLedger
		amount *uint256.Int
	}{{p.assetA, amountA}, {p.assetB, amountB}} {
		symbol := leg.asset.Token().Symbol
		if balance := leg.asset.BalanceOf(caller); balance.Lt(leg.amount) {
			return errorsmod.Wrapf(ledger.ErrInsufficientBalance, "%s holds %s %s, depositing %s", caller.Hex(), balance.Dec(), symbol, leg.amount.Dec())
		}
		if allowed := leg.asset.Allowance(caller, p.address); allowed.Lt(leg.amount) {
			return errorsmod.Wrapf(ledger.ErrInsufficientAllowance, "pool may spend %s %s of %s, depositing %s", allowed.Dec(), symbol, caller.Hex(), leg.amount.Dec())
		}
	}

	if err := p.assetA.TransferFrom(p.address, caller, p.address, amountA); err != nil {
		return err
	}
	if err := p.assetB.TransferFrom(p.address, caller, p.address, amountB); err != nil {
		p.compensate(p.assetA, p.address, caller, amountA)
		return err
	}
	return nil
}

// push sends both withdrawal legs from the pool to recipient.
func (p *Pool) push(recipient common.Address, amountA, amountB *uint256.Int) error {
	if err := p.assetA.Transfer(p.address, recipient, amountA); err != nil {
		return err
	}
	if err := p.assetB.Transfer(p.address, recipient, amountB); err != nil {
		p.compensate(p.assetA, recipient, p.address, amountA)
		return err
	}
	return nil
}

// compensate reverses an applied transfer leg after a later leg failed.
func (p *Pool) compensate(asset ledger.AssetLedger, from, to common.Address, amount *uint256.Int) {
	if err := asset.Transfer(from, to, amount); err != nil {
		p.logger.Error("Failed to reverse transfer leg",
			"pool", p.address,
			"asset", asset.Token().Address,
			"from", from,
			"to", to,
			"amount", amount.Dec(),
			"error", err,
		)
	}
}

func (p *Pool) publish(kind engine.EventKind, data any) {
	if p.events == nil {
		return
	}
	p.events.Publish(kind, p.pairID, p.address, data)
}

func (p *Pool) String() string {
	return fmt.Sprintf("%s/%s@%s", p.assetA.Token().Symbol, p.assetB.Token().Symbol, p.address.Hex())
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func minOf(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}
