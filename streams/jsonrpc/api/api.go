// Package api exposes the exchange over geth's JSON-RPC server. Calls act for
// the account named in their from parameter; nothing is signed.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// Namespace is the namespace the exchange API is registered under.
	Namespace = "amm"
	// EventsSubscriptionMethod is the subscription name for the event stream.
	EventsSubscriptionMethod = "subscribeEvents"

	defaultEventBuffer = 256
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of an API.
type Config struct {
	Router *router.Router
	Logger Logger
	// EventBuffer is how many events a subscriber may fall behind before
	// further events are dropped for it. Publishers never wait on subscribers.
	EventBuffer int
}

func (c *Config) validate() error {
	if c.Router == nil {
		return errors.New("config: Router cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.EventBuffer < 0 {
		return errors.New("config: EventBuffer cannot be negative")
	}
	return nil
}

// API implements the amm namespace.
type API struct {
	router   *router.Router
	registry *pairregistry.Registry
	buffer   int
	logger   Logger
}

// NewAPI creates the amm namespace service.
func NewAPI(cfg *Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buffer := cfg.EventBuffer
	if buffer == 0 {
		buffer = defaultEventBuffer
	}
	return &API{
		router:   cfg.Router,
		registry: cfg.Router.Registry(),
		buffer:   buffer,
		logger:   cfg.Logger,
	}, nil
}

func (api *API) CreatePool(x, y common.Address) (*Pair, error) {
	p, err := api.router.CreatePool(x, y)
	if err != nil {
		return nil, toRPCError(err)
	}
	pair := newPair(p)
	return &pair, nil
}

// PairId returns the canonical id of the pair {x, y} whether or not it has a pool.
func (api *API) PairId(x, y common.Address) (common.Hash, error) {
	id, err := pairregistry.PairID(x, y)
	return id, toRPCError(err)
}

func (api *API) PredictPoolAddress(x, y common.Address) (common.Address, error) {
	addr, err := api.registry.PredictAddress(x, y)
	return addr, toRPCError(err)
}

func (api *API) GetPool(pairID common.Hash) (*Pool, error) {
	pool, err := api.pool(pairID)
	return pool, toRPCError(err)
}

// GetPoolByAssets returns the pool trading x against y, in either order.
func (api *API) GetPoolByAssets(x, y common.Address) (*Pool, error) {
	pair, err := api.registry.LookupAssets(x, y)
	if err != nil {
		return nil, toRPCError(err)
	}
	pool, err := api.pool(pair.PairID)
	return pool, toRPCError(err)
}

func (api *API) GetPoolAddress(pairID common.Hash) (common.Address, error) {
	addr, err := api.registry.PoolAddress(pairID)
	return addr, toRPCError(err)
}

func (api *API) ListPools() ([]*Pool, error) {
	return api.pools(api.registry.Pairs())
}

func (api *API) PoolsForAsset(asset common.Address) ([]*Pool, error) {
	return api.pools(api.registry.PairsForAsset(asset))
}

func (api *API) AddLiquidity(from common.Address, pairID common.Hash, amountA, amountB *hexutil.Big) (*Deposit, error) {
	a, err := FromBig(amountA)
	if err != nil {
		return nil, err
	}
	b, err := FromBig(amountB)
	if err != nil {
		return nil, err
	}
	ev, err := api.router.AddLiquidity(from, pairID, a, b)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newDeposit(ev), nil
}

func (api *API) RemoveLiquidity(from common.Address, pairID common.Hash, liquidity *hexutil.Big) (*Withdrawal, error) {
	l, err := FromBig(liquidity)
	if err != nil {
		return nil, err
	}
	ev, err := api.router.RemoveLiquidity(from, pairID, l)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newWithdrawal(ev), nil
}

func (api *API) Swap(from common.Address, pairID common.Hash, amountAIn, amountBIn *hexutil.Big) (*Swap, error) {
	a, err := FromBig(amountAIn)
	if err != nil {
		return nil, err
	}
	b, err := FromBig(amountBIn)
	if err != nil {
		return nil, err
	}
	ev, err := api.router.Swap(from, pairID, a, b)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newSwap(ev), nil
}

func (api *API) QuoteSwap(pairID common.Hash, amountAIn, amountBIn *hexutil.Big) (*Quote, error) {
	a, err := FromBig(amountAIn)
	if err != nil {
		return nil, err
	}
	b, err := FromBig(amountBIn)
	if err != nil {
		return nil, err
	}
	q, err := api.router.QuoteSwap(pairID, a, b)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newQuote(q), nil
}

func (api *API) LiquidityOf(pairID common.Hash, account common.Address) (*hexutil.Big, error) {
	balance, err := api.router.LiquidityOf(pairID, account)
	if err != nil {
		return nil, toRPCError(err)
	}
	return ToBig(balance), nil
}

func (api *API) TransferLiquidity(from common.Address, pairID common.Hash, to common.Address, amount *hexutil.Big) error {
	v, err := FromBig(amount)
	if err != nil {
		return err
	}
	return toRPCError(api.router.TransferLiquidity(from, pairID, to, v))
}

// SubscribeEvents streams every event published after the call, optionally
// restricted to one pair.
func (api *API) SubscribeEvents(ctx context.Context, pairID *common.Hash) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	if pairID != nil {
		if _, err := api.registry.Lookup(*pairID); err != nil {
			return nil, toRPCError(err)
		}
	}

	rpcSub := notifier.CreateSubscription()
	events := make(chan engine.Event)
	pending := make(chan engine.Event, api.buffer)
	done := make(chan struct{})
	// subscribe before returning so no event published after the call is missed
	sub := api.router.SubscribeEvents(events)

	go func() {
		defer close(pending)
		defer sub.Unsubscribe()

		stop := make(chan struct{})
		go func() {
			select {
			case <-rpcSub.Err():
				api.logger.Debug("Subscriber left", "subscription", rpcSub.ID)
			case <-done:
			}
			close(stop)
		}()

		var dropped uint64
		relay(events, pending, pairID, stop, func(ev engine.Event) {
			dropped++
			api.logger.Warn("Subscriber is lagging, dropping event",
				"subscription", rpcSub.ID, "seq", ev.Seq, "dropped", dropped)
		})
	}()

	go func() {
		defer close(done)
		for ev := range pending {
			wire, err := NewEvent(ev, time.Now().UnixNano())
			if err != nil {
				api.logger.Error("Failed to encode event", "seq", ev.Seq, "error", err)
				continue
			}
			if err := notifier.Notify(rpcSub.ID, wire); err != nil {
				api.logger.Warn("Failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
				return
			}
		}
	}()

	return rpcSub, nil
}

// relay forwards events for pairID (all events when nil) from in to out until
// stop is closed. It never blocks on out: an event that does not fit is
// handed to dropped instead, so in is always drained.
func relay(in <-chan engine.Event, out chan<- engine.Event, pairID *common.Hash, stop <-chan struct{}, dropped func(engine.Event)) {
	for {
		select {
		case ev := <-in:
			if pairID != nil && ev.PairID != *pairID {
				continue
			}
			select {
			case out <- ev:
			default:
				dropped(ev)
			}
		case <-stop:
			return
		}
	}
}

func (api *API) pool(pairID common.Hash) (*Pool, error) {
	pair, view, err := api.router.Pool(pairID)
	if err != nil {
		return nil, err
	}
	info, err := api.registry.ExchangeInfo(pairID)
	if err != nil {
		return nil, err
	}
	return newPool(pair, info, view), nil
}

func (api *API) pools(pairs []pairregistry.Pair) ([]*Pool, error) {
	out := make([]*Pool, 0, len(pairs))
	for _, p := range pairs {
		pool, err := api.pool(p.PairID)
		if err != nil {
			return nil, toRPCError(err)
		}
		out = append(out, pool)
	}
	return out, nil
}
