package tokenpoolregistry

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolRegistry relates assets to the pools that trade them. It is not
// safe for concurrent use; TokenPoolSystem wraps it for that.
// Pools are only ever added. adjacency[i] lists the edge indices leaving
// tokens[i], edgeTargets[e] is the token index edge e points to and
// edgePools[e] the pool indices trading along it.
type TokenPoolRegistry struct {
	tokenToIndex map[common.Address]int
	poolToIndex  map[uint64]int

	tokens      []common.Address
	pools       []uint64
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

// NewTokenPoolRegistry creates an empty registry.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[common.Address]int),
		poolToIndex:  make(map[uint64]int),
	}
}

func (r *TokenPoolRegistry) tokenIndex(token common.Address) int {
	idx, ok := r.tokenToIndex[token]
	if !ok {
		idx = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = idx
		r.adjacency = append(r.adjacency, nil)
	}
	return idx
}

// addEdge links from -> to through the pool at poolIndex.
func (r *TokenPoolRegistry) addEdge(from, to common.Address, poolIndex int) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)

	for _, edge := range r.adjacency[fromIndex] {
		if r.edgeTargets[edge] != toIndex {
			continue
		}
		for _, existing := range r.edgePools[edge] {
			if existing == poolIndex {
				return
			}
		}
		r.edgePools[edge] = append(r.edgePools[edge], poolIndex)
		return
	}

	edge := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], edge)
}

// add connects every pair of tokens in the pool in both directions.
func (r *TokenPoolRegistry) add(tokens []common.Address, poolID uint64) {
	poolIndex, ok := r.poolToIndex[poolID]
	if !ok {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, poolID)
		r.poolToIndex[poolID] = poolIndex
	}
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			r.addEdge(tokens[i], tokens[j], poolIndex)
			r.addEdge(tokens[j], tokens[i], poolIndex)
		}
	}
}

// poolsForToken returns the pools trading token, ascending.
func (r *TokenPoolRegistry) poolsForToken(token common.Address) []uint64 {
	tokenIndex, ok := r.tokenToIndex[token]
	if !ok {
		return nil
	}
	seen := make(map[int]struct{})
	for _, edge := range r.adjacency[tokenIndex] {
		for _, poolIndex := range r.edgePools[edge] {
			seen[poolIndex] = struct{}{}
		}
	}
	return r.poolIDs(seen)
}

// poolsBetween returns the pools trading x directly against y, ascending.
func (r *TokenPoolRegistry) poolsBetween(x, y common.Address) []uint64 {
	xIndex, ok := r.tokenToIndex[x]
	if !ok {
		return nil
	}
	yIndex, ok := r.tokenToIndex[y]
	if !ok {
		return nil
	}
	for _, edge := range r.adjacency[xIndex] {
		if r.edgeTargets[edge] != yIndex {
			continue
		}
		seen := make(map[int]struct{}, len(r.edgePools[edge]))
		for _, poolIndex := range r.edgePools[edge] {
			seen[poolIndex] = struct{}{}
		}
		return r.poolIDs(seen)
	}
	return nil
}

func (r *TokenPoolRegistry) poolIDs(indices map[int]struct{}) []uint64 {
	if len(indices) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(indices))
	for poolIndex := range indices {
		ids = append(ids, r.pools[poolIndex])
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
