// Package pairregistry creates one constant-product pool per unordered asset
// pair, addresses it deterministically and serializes every operation on it.
package pairregistry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DefaultPoolTemplate identifies the pool implementation in derived addresses.
var DefaultPoolTemplate = []byte("defistate-amm/constantproduct/v1")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pair is the persisted record of a created pool.
type Pair struct {
	ID      uint64         `json:"id"`
	PairID  common.Hash    `json:"pairId"`
	Address common.Address `json:"address"`
	Label   string         `json:"label"`
	AssetA  common.Address `json:"assetA"`
	AssetB  common.Address `json:"assetB"`
}

// Config holds the dependencies of a Registry.
type Config struct {
	// Address is the registry's identity; it is the deployer in every pool address.
	Address common.Address
	// PoolTemplate is hashed into every pool address. Defaults to DefaultPoolTemplate.
	PoolTemplate []byte
	Assets       ledger.Directory
	// Store persists pair records. An in-memory store is used when nil.
	Store dbm.DB
	// Events is optional; pool creation and every pool operation are published to it.
	Events engine.Publisher
	Logger Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	if c.Assets == nil {
		return errors.New("config: Assets cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

type entry struct {
	mu   sync.Mutex
	pair Pair
	pool *constantproduct.Pool
	// view is refreshed after every operation and read without taking mu.
	view atomic.Pointer[constantproduct.View]
}

func (e *entry) refresh() {
	v := e.pool.View()
	e.view.Store(&v)
}

// Registry owns every pool. Pools are added once and never removed.
type Registry struct {
	address  common.Address
	codeHash []byte
	assets   ledger.Directory
	store    dbm.DB
	events   engine.Publisher
	logger   Logger

	mu        sync.RWMutex
	byPair    map[common.Hash]*entry
	byAddress map[common.Address]*entry
	ordered   []*entry
	index     *tokenpoolregistry.TokenPoolSystem

	cachedPairs atomic.Pointer[[]Pair]
}

// NewRegistry creates a registry and restores every pair found in the store.
func NewRegistry(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	template := cfg.PoolTemplate
	if len(template) == 0 {
		template = DefaultPoolTemplate
	}
	store := cfg.Store
	if store == nil {
		store = dbm.NewMemDB()
	}

	r := &Registry{
		address:   cfg.Address,
		codeHash:  crypto.Keccak256(template),
		assets:    cfg.Assets,
		store:     store,
		events:    cfg.Events,
		logger:    cfg.Logger,
		byPair:    make(map[common.Hash]*entry),
		byAddress: make(map[common.Address]*entry),
		index:     tokenpoolregistry.NewTokenPoolSystem(),
	}
	r.updateCachedPairs()

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("failed to restore pairs: %w", err)
	}
	return r, nil
}

// load rebuilds empty pools for every stored pair, in creation order.
func (r *Registry) load() error {
	it, err := r.store.Iterator(pairKeyPrefix, prefixEnd(pairKeyPrefix))
	if err != nil {
		return err
	}
	defer it.Close()

	var pairs []Pair
	for ; it.Valid(); it.Next() {
		var p Pair
		if err := rlp.DecodeBytes(it.Value(), &p); err != nil {
			return errorsmod.Wrapf(ErrCorruptStore, "decode %x: %v", it.Key(), err)
		}
		pairs = append(pairs, p)
	}
	if err := it.Error(); err != nil {
		return err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range pairs {
		if p.ID != uint64(i+1) {
			return errorsmod.Wrapf(ErrCorruptStore, "pair %s has id %d, expected %d", p.Label, p.ID, i+1)
		}
		if derived := PoolAddress(r.address, p.PairID, r.codeHash); derived != p.Address {
			return errorsmod.Wrapf(ErrCorruptStore, "pair %s stored at %s, derives to %s", p.Label, p.Address.Hex(), derived.Hex())
		}
		e, err := r.newEntry(p)
		if err != nil {
			return err
		}
		r.add(e)
	}
	if len(pairs) > 0 {
		r.logger.Info("Restored trading pairs", "count", len(pairs))
	}
	return nil
}

func (r *Registry) newEntry(p Pair) (*entry, error) {
	assetA, err := r.assets.Asset(p.AssetA)
	if err != nil {
		return nil, err
	}
	assetB, err := r.assets.Asset(p.AssetB)
	if err != nil {
		return nil, err
	}
	pool, err := constantproduct.NewPool(&constantproduct.Config{
		Address: p.Address,
		PairID:  p.PairID,
		AssetA:  assetA,
		AssetB:  assetB,
		Events:  r.events,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}
	e := &entry{pair: p, pool: pool}
	e.refresh()
	return e, nil
}

// add must be called with r.mu held for writing.
func (r *Registry) add(e *entry) {
	r.byPair[e.pair.PairID] = e
	r.byAddress[e.pair.Address] = e
	r.ordered = append(r.ordered, e)
	r.index.AddPool([]common.Address{e.pair.AssetA, e.pair.AssetB}, e.pair.ID)
	r.updateCachedPairs()
}

// must be called with r.mu held for writing, or before r is shared.
func (r *Registry) updateCachedPairs() {
	pairs := make([]Pair, len(r.ordered))
	for i, e := range r.ordered {
		pairs[i] = e.pair
	}
	r.cachedPairs.Store(&pairs)
}

// CreatePool creates the pool for the unordered pair {x, y}. The pool's
// internal asset order, and its label, follow the argument order.
func (r *Registry) CreatePool(x, y common.Address) (Pair, error) {
	pairID, err := PairID(x, y)
	if err != nil {
		return Pair{}, err
	}
	assetX, err := r.assets.Asset(x)
	if err != nil {
		return Pair{}, err
	}
	assetY, err := r.assets.Asset(y)
	if err != nil {
		return Pair{}, err
	}
	label := tokenregistry.PairLabel(assetX.Token(), assetY.Token())

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byPair[pairID]; ok {
		return Pair{}, errorsmod.Wrapf(ErrPairAlreadyExists, "%s at %s", existing.pair.Label, existing.pair.Address.Hex())
	}

	p := Pair{
		ID:      uint64(len(r.ordered) + 1),
		PairID:  pairID,
		Address: PoolAddress(r.address, pairID, r.codeHash),
		Label:   label,
		AssetA:  x,
		AssetB:  y,
	}
	e, err := r.newEntry(p)
	if err != nil {
		return Pair{}, err
	}

	bz, err := rlp.EncodeToBytes(&p)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to encode pair %s: %w", label, err)
	}
	if err := r.store.SetSync(pairKey(pairID), bz); err != nil {
		return Pair{}, fmt.Errorf("failed to persist pair %s: %w", label, err)
	}
	r.add(e)

	if r.events != nil {
		r.events.Publish(engine.EventPoolCreated, pairID, p.Address, &engine.PoolCreated{
			ID:     p.ID,
			Label:  p.Label,
			PairID: p.PairID,
			Pool:   p.Address,
			AssetA: p.AssetA,
			AssetB: p.AssetB,
		})
	}
	r.logger.Info("Trading pair created",
		"id", p.ID,
		"pair", p.Label,
		"pair_id", p.PairID,
		"pool", p.Address,
	)
	return p, nil
}

// PredictAddress returns the address the pool for {x, y} has, or will have once created.
func (r *Registry) PredictAddress(x, y common.Address) (common.Address, error) {
	pairID, err := PairID(x, y)
	if err != nil {
		return common.Address{}, err
	}
	return PoolAddress(r.address, pairID, r.codeHash), nil
}

func (r *Registry) entry(pairID common.Hash) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPair[pairID]
	if !ok {
		return nil, errorsmod.Wrap(ErrUnknownPool, pairID.Hex())
	}
	return e, nil
}

// Lookup returns the pair record for pairID.
func (r *Registry) Lookup(pairID common.Hash) (Pair, error) {
	e, err := r.entry(pairID)
	if err != nil {
		return Pair{}, err
	}
	return e.pair, nil
}

// LookupAssets returns the pair trading x against y, in either order.
func (r *Registry) LookupAssets(x, y common.Address) (Pair, error) {
	pairID, err := PairID(x, y)
	if err != nil {
		return Pair{}, err
	}
	pairs := r.pairsByID(r.index.PoolsBetween(x, y))
	if len(pairs) == 0 {
		return Pair{}, errorsmod.Wrapf(ErrUnknownPool, "%s/%s (%s)", x.Hex(), y.Hex(), pairID.Hex())
	}
	return pairs[0], nil
}

// LookupAddress returns the pair whose pool lives at address.
func (r *Registry) LookupAddress(address common.Address) (Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAddress[address]
	if !ok {
		return Pair{}, errorsmod.Wrap(ErrUnknownPool, address.Hex())
	}
	return e.pair, nil
}

// PoolAddress returns the address of the pool created for pairID.
func (r *Registry) PoolAddress(pairID common.Hash) (common.Address, error) {
	p, err := r.Lookup(pairID)
	if err != nil {
		return common.Address{}, err
	}
	return p.Address, nil
}

// Pairs returns every pair in creation order.
func (r *Registry) Pairs() []Pair {
	cached := r.cachedPairs.Load()
	return append([]Pair{}, (*cached)...)
}

// PairsForAsset returns every pair trading asset, in creation order.
func (r *Registry) PairsForAsset(asset common.Address) []Pair {
	return r.pairsByID(r.index.PoolsForToken(asset))
}

// pairsByID maps ascending pair ids to their records, or nil when there are none.
func (r *Registry) pairsByID(ids []uint64) []Pair {
	if len(ids) == 0 {
		return nil
	}
	all := r.cachedPairs.Load()
	out := make([]Pair, 0, len(ids))
	for _, id := range ids {
		// ids are 1-based creation indexes and the cache is updated after the index
		if id <= uint64(len(*all)) {
			out = append(out, (*all)[id-1])
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Len returns the number of pairs.
func (r *Registry) Len() int {
	return len(*r.cachedPairs.Load())
}

// Do runs fn against the pool for pairID while holding that pool's lock.
// Operations on distinct pools run concurrently.
func (r *Registry) Do(pairID common.Hash, fn func(*constantproduct.Pool) error) error {
	e, err := r.entry(pairID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.refresh()
	return fn(e.pool)
}

// View returns the pricing state of the pool for pairID as of its last
// completed operation, without waiting for one in flight.
func (r *Registry) View(pairID common.Hash) (constantproduct.View, error) {
	e, err := r.entry(pairID)
	if err != nil {
		return constantproduct.View{}, err
	}
	v := *e.view.Load()
	v.ReserveA = v.ReserveA.Clone()
	v.ReserveB = v.ReserveB.Clone()
	v.K = v.K.Clone()
	v.TotalSupply = v.TotalSupply.Clone()
	return v, nil
}

// ExchangeInfo returns the metadata of both assets of the pool for pairID.
func (r *Registry) ExchangeInfo(pairID common.Hash) (constantproduct.ExchangeInfo, error) {
	e, err := r.entry(pairID)
	if err != nil {
		return constantproduct.ExchangeInfo{}, err
	}
	return e.pool.ExchangeInfo(), nil
}
