package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names the state transition carried by an Event.
type EventKind string

const (
	EventPoolCreated EventKind = "pool_created"
	EventDeposit     EventKind = "deposit"
	EventWithdrawal  EventKind = "withdrawal"
	EventSwap        EventKind = "swap"
)

// Event is the envelope broadcast to subscribers for every committed operation.
// Data holds one of *PoolCreated, *Deposit, *Withdrawal or *Swap, matching Kind.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	PairID    common.Hash    `json:"pairId"`
	Pool      common.Address `json:"pool"`
	Timestamp int64          `json:"timestamp"` // unix nanoseconds
	Data      any            `json:"data"`
}

// PoolCreated is emitted once per pair by the registry.
type PoolCreated struct {
	ID     uint64         `json:"id"`
	Label  string         `json:"label"`
	PairID common.Hash    `json:"pairId"`
	Pool   common.Address `json:"pool"`
	AssetA common.Address `json:"assetA"`
	AssetB common.Address `json:"assetB"`
}

// Deposit describes liquidity added to a pool.
type Deposit struct {
	Initiator      common.Address `json:"initiator"`
	Recipient      common.Address `json:"recipient"`
	SuppliedA      *uint256.Int   `json:"suppliedA"`
	SuppliedB      *uint256.Int   `json:"suppliedB"`
	NewReserveA    *uint256.Int   `json:"newReserveA"`
	NewReserveB    *uint256.Int   `json:"newReserveB"`
	MintedFromA    *uint256.Int   `json:"mintedFromA"`
	MintedFromB    *uint256.Int   `json:"mintedFromB"`
	Minted         *uint256.Int   `json:"minted"`
	NewTotalSupply *uint256.Int   `json:"newTotalSupply"`
}

// Withdrawal describes liquidity burned in exchange for reserves.
type Withdrawal struct {
	Initiator      common.Address `json:"initiator"`
	Recipient      common.Address `json:"recipient"`
	ReserveA       *uint256.Int   `json:"reserveA"` // at withdrawal, before the burn
	ReserveB       *uint256.Int   `json:"reserveB"`
	AmountA        *uint256.Int   `json:"amountA"`
	AmountB        *uint256.Int   `json:"amountB"`
	Burned         *uint256.Int   `json:"burned"`
	NewTotalSupply *uint256.Int   `json:"newTotalSupply"`
}

// Swap describes a single-pair trade. Exactly one of the In amounts and one
// of the Out amounts is nonzero.
type Swap struct {
	Initiator   common.Address `json:"initiator"`
	Recipient   common.Address `json:"recipient"`
	AmountAIn   *uint256.Int   `json:"amountAIn"`
	AmountBIn   *uint256.Int   `json:"amountBIn"`
	AmountAOut  *uint256.Int   `json:"amountAOut"`
	AmountBOut  *uint256.Int   `json:"amountBOut"`
	NewReserveA *uint256.Int   `json:"newReserveA"`
	NewReserveB *uint256.Int   `json:"newReserveB"`
}
