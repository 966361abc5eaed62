package tokenpoolregistry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolSystem is the concurrency-safe layer over TokenPoolRegistry.
type TokenPoolSystem struct {
	mu       sync.RWMutex
	registry *TokenPoolRegistry
}

// NewTokenPoolSystem creates an empty system.
func NewTokenPoolSystem() *TokenPoolSystem {
	return &TokenPoolSystem{registry: NewTokenPoolRegistry()}
}

// AddPool records that poolID trades every token in tokens against the others.
func (s *TokenPoolSystem) AddPool(tokens []common.Address, poolID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.add(tokens, poolID)
}

// PoolsForToken returns the IDs of every pool trading token, ascending, or nil.
func (s *TokenPoolSystem) PoolsForToken(token common.Address) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(token)
}

// PoolsBetween returns the IDs of the pools trading x directly against y.
func (s *TokenPoolSystem) PoolsBetween(x, y common.Address) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsBetween(x, y)
}
