package pairregistry

import (
	"bytes"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// pairKeyPrefix prefixes pair id -> RLP(Pair) records.
var pairKeyPrefix = []byte{0x01}

func pairKey(pairID common.Hash) []byte {
	return append(append([]byte{}, pairKeyPrefix...), pairID.Bytes()...)
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// SortAssets orders two asset addresses by their bytes.
func SortAssets(x, y common.Address) (lower, higher common.Address) {
	if bytes.Compare(x.Bytes(), y.Bytes()) > 0 {
		return y, x
	}
	return x, y
}

// PairID returns the canonical id of the unordered pair {x, y}:
// keccak256 over the sorted 20-byte addresses.
func PairID(x, y common.Address) (common.Hash, error) {
	if x == y {
		return common.Hash{}, errorsmod.Wrap(ErrIdenticalAssets, x.Hex())
	}
	lower, higher := SortAssets(x, y)
	return crypto.Keccak256Hash(lower.Bytes(), higher.Bytes()), nil
}

// PoolAddress derives the CREATE2 address of the pool for pairID deployed by
// registry from a template whose keccak256 is codeHash.
func PoolAddress(registry common.Address, pairID common.Hash, codeHash []byte) common.Address {
	return crypto.CreateAddress2(registry, pairID, codeHash)
}
