// Package router is the caller-facing entry point of the exchange: it resolves
// pairs through the registry, runs each operation under the pool's lock and
// records metrics.
package router

import (
	"errors"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCreatePool        = "create_pool"
	opAddLiquidity      = "add_liquidity"
	opRemoveLiquidity   = "remove_liquidity"
	opSwap              = "swap"
	opQuoteSwap         = "quote_swap"
	opTransferLiquidity = "transfer_liquidity"
	opApproveLiquidity  = "approve_liquidity"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of a Router.
type Config struct {
	Registry *pairregistry.Registry
	// Feed must be the publisher the registry was built with.
	Feed *engine.Feed
	// Registerer is optional; metrics are not exported when nil.
	Registerer prometheus.Registerer
	Logger     Logger
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Feed == nil {
		return errors.New("config: Feed cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Router delegates every call to the pool of the named pair, acting for the
// caller as both initiator and recipient.
type Router struct {
	registry *pairregistry.Registry
	feed     *engine.Feed
	metrics  *Metrics
	logger   Logger
}

// NewRouter creates a Router.
func NewRouter(cfg *Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Router{
		registry: cfg.Registry,
		feed:     cfg.Feed,
		metrics:  NewMetrics(cfg.Registerer),
		logger:   cfg.Logger,
	}
	r.metrics.pools.Set(float64(r.registry.Len()))
	return r, nil
}

// CreatePool creates the pool for {x, y}; see pairregistry.Registry.CreatePool.
func (r *Router) CreatePool(x, y common.Address) (pair pairregistry.Pair, err error) {
	defer r.metrics.observe(opCreatePool)(&err)
	defer r.trace(opCreatePool, &err)

	pair, err = r.registry.CreatePool(x, y)
	if err != nil {
		return pairregistry.Pair{}, err
	}
	r.metrics.pools.Set(float64(r.registry.Len()))
	return pair, nil
}

// AddLiquidity deposits into the pool for pairID and mints liquidity to caller.
func (r *Router) AddLiquidity(caller common.Address, pairID common.Hash, amountA, amountB *uint256.Int) (ev *engine.Deposit, err error) {
	defer r.metrics.observe(opAddLiquidity)(&err)
	defer r.trace(opAddLiquidity, &err)

	err = r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		var err error
		ev, err = p.Deposit(caller, amountA, amountB, caller)
		return err
	})
	return ev, err
}

// RemoveLiquidity burns caller's liquidity and returns the proportional reserves to caller.
func (r *Router) RemoveLiquidity(caller common.Address, pairID common.Hash, liquidity *uint256.Int) (ev *engine.Withdrawal, err error) {
	defer r.metrics.observe(opRemoveLiquidity)(&err)
	defer r.trace(opRemoveLiquidity, &err)

	err = r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		var err error
		ev, err = p.Withdraw(caller, liquidity, caller)
		return err
	})
	return ev, err
}

// Swap trades exactly one nonzero input through the pool for pairID.
func (r *Router) Swap(caller common.Address, pairID common.Hash, amountAIn, amountBIn *uint256.Int) (ev *engine.Swap, err error) {
	defer r.metrics.observe(opSwap)(&err)
	defer r.trace(opSwap, &err)

	err = r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		var err error
		ev, err = p.Swap(caller, amountAIn, amountBIn, caller)
		return err
	})
	return ev, err
}

// QuoteSwap prices a swap against the pool's current state without executing it.
func (r *Router) QuoteSwap(pairID common.Hash, amountAIn, amountBIn *uint256.Int) (quote calculator.SwapResult, err error) {
	defer r.metrics.observe(opQuoteSwap)(&err)

	err = r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		var err error
		quote, err = p.QuoteSwap(amountAIn, amountBIn)
		return err
	})
	return quote, err
}

// TransferLiquidity moves caller's liquidity tokens of pairID to another account.
func (r *Router) TransferLiquidity(caller common.Address, pairID common.Hash, to common.Address, amount *uint256.Int) (err error) {
	defer r.metrics.observe(opTransferLiquidity)(&err)
	defer r.trace(opTransferLiquidity, &err)

	return r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		return p.TransferLiquidity(caller, to, amount)
	})
}

// ApproveLiquidity lets spender move up to amount of caller's liquidity tokens of pairID.
func (r *Router) ApproveLiquidity(caller common.Address, pairID common.Hash, spender common.Address, amount *uint256.Int) (err error) {
	defer r.metrics.observe(opApproveLiquidity)(&err)

	return r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		p.ApproveLiquidity(caller, spender, amount)
		return nil
	})
}

// LiquidityOf returns account's liquidity-token balance in the pool for pairID.
func (r *Router) LiquidityOf(pairID common.Hash, account common.Address) (balance *uint256.Int, err error) {
	err = r.registry.Do(pairID, func(p *constantproduct.Pool) error {
		balance = p.LiquidityOf(account)
		return nil
	})
	return balance, err
}

// Pool returns the pair record and the latest pricing state of its pool.
func (r *Router) Pool(pairID common.Hash) (pairregistry.Pair, constantproduct.View, error) {
	pair, err := r.registry.Lookup(pairID)
	if err != nil {
		return pairregistry.Pair{}, constantproduct.View{}, err
	}
	view, err := r.registry.View(pairID)
	if err != nil {
		return pairregistry.Pair{}, constantproduct.View{}, err
	}
	return pair, view, nil
}

// Registry exposes the read side of the pair registry.
func (r *Router) Registry() *pairregistry.Registry {
	return r.registry
}

// SubscribeEvents delivers every subsequently published event to ch. The
// channel must be drained promptly: publishing blocks on slow subscribers.
func (r *Router) SubscribeEvents(ch chan<- engine.Event) event.Subscription {
	return r.feed.Subscribe(ch)
}

func (r *Router) trace(op string, errp *error) {
	if *errp != nil {
		r.logger.Debug("Operation rejected", "op", op, "error", *errp)
	}
}
