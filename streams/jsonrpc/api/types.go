package api

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Pair is the wire form of a pair record.
type Pair struct {
	ID      uint64         `json:"id"`
	PairID  common.Hash    `json:"pairId"`
	Address common.Address `json:"address"`
	Label   string         `json:"label"`
	AssetA  common.Address `json:"assetA"`
	AssetB  common.Address `json:"assetB"`
}

// Pool is a pair together with its assets' metadata and current pricing state.
type Pool struct {
	Pair
	TokenA      tokenregistry.Token `json:"tokenA"`
	TokenB      tokenregistry.Token `json:"tokenB"`
	ReserveA    *hexutil.Big        `json:"reserveA"`
	ReserveB    *hexutil.Big        `json:"reserveB"`
	K           *hexutil.Big        `json:"k"`
	TotalSupply *hexutil.Big        `json:"totalSupply"`
}

// Deposit is the outcome of addLiquidity and the payload of deposit events.
type Deposit struct {
	Initiator   common.Address `json:"initiator"`
	Recipient   common.Address `json:"recipient"`
	SuppliedA   *hexutil.Big   `json:"suppliedA"`
	SuppliedB   *hexutil.Big   `json:"suppliedB"`
	MintedFromA *hexutil.Big   `json:"mintedFromA"`
	MintedFromB *hexutil.Big   `json:"mintedFromB"`
	Minted      *hexutil.Big   `json:"minted"`
	ReserveA    *hexutil.Big   `json:"reserveA"`
	ReserveB    *hexutil.Big   `json:"reserveB"`
	TotalSupply *hexutil.Big   `json:"totalSupply"`
}

// Withdrawal is the outcome of removeLiquidity and the payload of withdrawal
// events. Reserves are those the withdrawal was priced against.
type Withdrawal struct {
	Initiator   common.Address `json:"initiator"`
	Recipient   common.Address `json:"recipient"`
	ReserveA    *hexutil.Big   `json:"reserveA"`
	ReserveB    *hexutil.Big   `json:"reserveB"`
	AmountA     *hexutil.Big   `json:"amountA"`
	AmountB     *hexutil.Big   `json:"amountB"`
	Burned      *hexutil.Big   `json:"burned"`
	TotalSupply *hexutil.Big   `json:"totalSupply"`
}

// Swap is the outcome of swap and the payload of swap events.
type Swap struct {
	Initiator  common.Address `json:"initiator"`
	Recipient  common.Address `json:"recipient"`
	AmountAIn  *hexutil.Big   `json:"amountAIn"`
	AmountBIn  *hexutil.Big   `json:"amountBIn"`
	AmountAOut *hexutil.Big   `json:"amountAOut"`
	AmountBOut *hexutil.Big   `json:"amountBOut"`
	ReserveA   *hexutil.Big   `json:"reserveA"`
	ReserveB   *hexutil.Big   `json:"reserveB"`
}

// Quote is the priced outcome of a swap that has not been executed.
type Quote struct {
	AmountAOut *hexutil.Big `json:"amountAOut"`
	AmountBOut *hexutil.Big `json:"amountBOut"`
	ReserveA   *hexutil.Big `json:"reserveA"`
	ReserveB   *hexutil.Big `json:"reserveB"`
}

// Event is the envelope delivered to subscribeEvents subscribers. Payload
// holds a Pair, Deposit, Withdrawal or Swap depending on Kind.
type Event struct {
	Seq       uint64           `json:"seq"`
	Kind      engine.EventKind `json:"kind"`
	PairID    common.Hash      `json:"pairId"`
	Pool      common.Address   `json:"pool"`
	Timestamp int64            `json:"timestamp"`
	SentAt    int64            `json:"sentAt"`
	Payload   json.RawMessage  `json:"payload"`
}

// Decode unmarshals the payload into the type matching Kind.
func (e *Event) Decode() (any, error) {
	var target any
	switch e.Kind {
	case engine.EventPoolCreated:
		target = new(Pair)
	case engine.EventDeposit:
		target = new(Deposit)
	case engine.EventWithdrawal:
		target = new(Withdrawal)
	case engine.EventSwap:
		target = new(Swap)
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Kind, err)
	}
	return target, nil
}

// ToBig converts an amount to its wire form.
func ToBig(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(uint256.Int).ToBig())
	}
	return (*hexutil.Big)(v.ToBig())
}

// FromBig converts a wire amount, treating nil as zero.
func FromBig(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	z, overflow := uint256.FromBig(v.ToInt())
	if overflow {
		return nil, fmt.Errorf("amount %s does not fit in 256 bits", v.String())
	}
	return z, nil
}

func newPair(p pairregistry.Pair) Pair {
	return Pair{
		ID:      p.ID,
		PairID:  p.PairID,
		Address: p.Address,
		Label:   p.Label,
		AssetA:  p.AssetA,
		AssetB:  p.AssetB,
	}
}

func newPool(p pairregistry.Pair, info constantproduct.ExchangeInfo, v constantproduct.View) *Pool {
	return &Pool{
		Pair:        newPair(p),
		TokenA:      info.AssetA,
		TokenB:      info.AssetB,
		ReserveA:    ToBig(v.ReserveA),
		ReserveB:    ToBig(v.ReserveB),
		K:           ToBig(v.K),
		TotalSupply: ToBig(v.TotalSupply),
	}
}

func newDeposit(d *engine.Deposit) *Deposit {
	return &Deposit{
		Initiator:   d.Initiator,
		Recipient:   d.Recipient,
		SuppliedA:   ToBig(d.SuppliedA),
		SuppliedB:   ToBig(d.SuppliedB),
		MintedFromA: ToBig(d.MintedFromA),
		MintedFromB: ToBig(d.MintedFromB),
		Minted:      ToBig(d.Minted),
		ReserveA:    ToBig(d.NewReserveA),
		ReserveB:    ToBig(d.NewReserveB),
		TotalSupply: ToBig(d.NewTotalSupply),
	}
}

func newWithdrawal(w *engine.Withdrawal) *Withdrawal {
	return &Withdrawal{
		Initiator:   w.Initiator,
		Recipient:   w.Recipient,
		ReserveA:    ToBig(w.ReserveA),
		ReserveB:    ToBig(w.ReserveB),
		AmountA:     ToBig(w.AmountA),
		AmountB:     ToBig(w.AmountB),
		Burned:      ToBig(w.Burned),
		TotalSupply: ToBig(w.NewTotalSupply),
	}
}

func newSwap(s *engine.Swap) *Swap {
	return &Swap{
		Initiator:  s.Initiator,
		Recipient:  s.Recipient,
		AmountAIn:  ToBig(s.AmountAIn),
		AmountBIn:  ToBig(s.AmountBIn),
		AmountAOut: ToBig(s.AmountAOut),
		AmountBOut: ToBig(s.AmountBOut),
		ReserveA:   ToBig(s.NewReserveA),
		ReserveB:   ToBig(s.NewReserveB),
	}
}

func newQuote(q calculator.SwapResult) *Quote {
	return &Quote{
		AmountAOut: ToBig(q.AmountAOut),
		AmountBOut: ToBig(q.AmountBOut),
		ReserveA:   ToBig(q.Reserves.A),
		ReserveB:   ToBig(q.Reserves.B),
	}
}

// NewEvent converts a published engine event to its wire form.
func NewEvent(ev engine.Event, sentAt int64) (*Event, error) {
	var payload any
	switch data := ev.Data.(type) {
	case *engine.PoolCreated:
		payload = Pair{
			ID:      data.ID,
			PairID:  data.PairID,
			Address: data.Pool,
			Label:   data.Label,
			AssetA:  data.AssetA,
			AssetB:  data.AssetB,
		}
	case *engine.Deposit:
		payload = newDeposit(data)
	case *engine.Withdrawal:
		payload = newWithdrawal(data)
	case *engine.Swap:
		payload = newSwap(data)
	default:
		return nil, fmt.Errorf("unsupported event payload %T", ev.Data)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		PairID:    ev.PairID,
		Pool:      ev.Pool,
		Timestamp: ev.Timestamp,
		SentAt:    sentAt,
		Payload:   raw,
	}, nil
}
