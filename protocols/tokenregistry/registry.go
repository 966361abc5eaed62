package tokenregistry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTokenExists is returned when registering an address twice.
	ErrTokenExists = errors.New("token already registered")
	// ErrZeroAddress is returned when registering the zero address.
	ErrZeroAddress = errors.New("token address cannot be zero")
)

// Registry provides indexed, concurrency-safe access to token metadata.
// IDs are assigned sequentially on registration, starting at 0.
type Registry struct {
	mu        sync.RWMutex
	byAddress map[common.Address]Token
	all       []Token
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddress: make(map[common.Address]Token),
	}
}

// Register assigns the next ID to t and stores it. The stored token is returned.
func (r *Registry) Register(t Token) (Token, error) {
	if t.Address == (common.Address{}) {
		return Token{}, ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAddress[t.Address]; ok {
		return Token{}, fmt.Errorf("%w: %s", ErrTokenExists, t.Address.Hex())
	}

	t.ID = uint64(len(r.all))
	r.byAddress[t.Address] = t
	r.all = append(r.all, t)
	return t, nil
}

// GetByAddress retrieves a token by its address.
func (r *Registry) GetByAddress(address common.Address) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddress[address]
	return t, ok
}

// All returns a defensive copy of every registered token in ID order.
func (r *Registry) All() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	allCopy := make([]Token, len(r.all))
	copy(allCopy, r.all)
	return allCopy
}
