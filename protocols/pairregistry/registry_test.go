package pairregistry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddress = common.HexToAddress("0x0000000000000000000000000000000000a11ce5")
	applesAddress   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	orangesAddress  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	pearsAddress    = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	unknownAddress  = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

func newBank(t *testing.T) *ledger.Bank {
	t.Helper()
	bank := ledger.NewBank()
	for _, token := range []tokenregistry.Token{
		{Address: applesAddress, Name: "Apples", Symbol: "APL", Decimals: 18},
		{Address: orangesAddress, Name: "Oranges", Symbol: "ORG", Decimals: 18},
		{Address: pearsAddress, Name: "Pears", Symbol: "PER", Decimals: 6},
	} {
		_, err := bank.NewAsset(token)
		require.NoError(t, err)
	}
	return bank
}

func newRegistry(t *testing.T, bank *ledger.Bank, store dbm.DB, events engine.Publisher) *Registry {
	t.Helper()
	r, err := NewRegistry(&Config{
		Address: registryAddress,
		Assets:  bank,
		Store:   store,
		Events:  events,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func TestPairID(t *testing.T) {
	forward, err := PairID(applesAddress, orangesAddress)
	require.NoError(t, err)
	backward, err := PairID(orangesAddress, applesAddress)
	require.NoError(t, err)

	assert.Equal(t, forward, backward)
	// 0x5F.. sorts before 0xe7..
	assert.Equal(t, crypto.Keccak256Hash(applesAddress.Bytes(), orangesAddress.Bytes()), forward)

	_, err = PairID(applesAddress, applesAddress)
	assert.ErrorIs(t, err, ErrIdenticalAssets)
}

func TestPrefixEnd(t *testing.T) {
	testCases := []struct {
		prefix   []byte
		expected []byte
	}{
		{prefix: []byte{0x01}, expected: []byte{0x02}},
		{prefix: []byte{0x01, 0xff}, expected: []byte{0x02}},
		{prefix: []byte{0xff, 0xff}, expected: nil},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%x", tc.prefix), func(t *testing.T) {
			assert.Equal(t, tc.expected, prefixEnd(tc.prefix))
		})
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	bank := ledger.NewBank()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name string
		cfg  *Config
	}{
		{name: "Zero address", cfg: &Config{Assets: bank, Logger: logger}},
		{name: "Nil assets", cfg: &Config{Address: registryAddress, Logger: logger}},
		{name: "Nil logger", cfg: &Config{Address: registryAddress, Assets: bank}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_CreatePool(t *testing.T) {
	feed := engine.NewFeed()
	events := make(chan engine.Event, 8)
	sub := feed.Subscribe(events)
	defer sub.Unsubscribe()

	r := newRegistry(t, newBank(t), nil, feed)

	predicted, err := r.PredictAddress(orangesAddress, applesAddress)
	require.NoError(t, err)

	pair, err := r.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)

	expectedID := crypto.Keccak256Hash(applesAddress.Bytes(), orangesAddress.Bytes())
	assert.Equal(t, uint64(1), pair.ID)
	assert.Equal(t, expectedID, pair.PairID)
	assert.Equal(t, "Apples/Oranges", pair.Label)
	assert.Equal(t, applesAddress, pair.AssetA)
	assert.Equal(t, orangesAddress, pair.AssetB)
	assert.Equal(t, predicted, pair.Address)
	assert.Equal(t, crypto.CreateAddress2(registryAddress, expectedID, crypto.Keccak256(DefaultPoolTemplate)), pair.Address)

	ev := <-events
	assert.Equal(t, engine.EventPoolCreated, ev.Kind)
	assert.Equal(t, pair.Address, ev.Pool)
	created, ok := ev.Data.(*engine.PoolCreated)
	require.True(t, ok)
	assert.Equal(t, "Apples/Oranges", created.Label)
	assert.Equal(t, uint64(1), created.ID)

	t.Run("Either order resolves to the same pool", func(t *testing.T) {
		byAssets, err := r.LookupAssets(orangesAddress, applesAddress)
		require.NoError(t, err)
		assert.Equal(t, pair, byAssets)

		byAddress, err := r.LookupAddress(pair.Address)
		require.NoError(t, err)
		assert.Equal(t, pair, byAddress)

		address, err := r.PoolAddress(pair.PairID)
		require.NoError(t, err)
		assert.Equal(t, pair.Address, address)
	})

	t.Run("Creating the pair again fails", func(t *testing.T) {
		_, err := r.CreatePool(orangesAddress, applesAddress)
		assert.ErrorIs(t, err, ErrPairAlreadyExists)
		_, err = r.CreatePool(applesAddress, orangesAddress)
		assert.ErrorIs(t, err, ErrPairAlreadyExists)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("Invalid pairs", func(t *testing.T) {
		_, err := r.CreatePool(applesAddress, applesAddress)
		assert.ErrorIs(t, err, ErrIdenticalAssets)
		_, err = r.CreatePool(applesAddress, unknownAddress)
		assert.ErrorIs(t, err, ledger.ErrUnknownAsset)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("Exchange info follows creation order", func(t *testing.T) {
		info, err := r.ExchangeInfo(pair.PairID)
		require.NoError(t, err)
		assert.Equal(t, "Apples", info.AssetA.Name)
		assert.Equal(t, "Oranges", info.AssetB.Name)
	})
}

func TestRegistry_AddressesDependOnIdentityAndTemplate(t *testing.T) {
	bank := newBank(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base := newRegistry(t, bank, nil, nil)
	other, err := NewRegistry(&Config{Address: common.HexToAddress("0xb0b"), Assets: bank, Logger: logger})
	require.NoError(t, err)
	templated, err := NewRegistry(&Config{Address: registryAddress, PoolTemplate: []byte("v2"), Assets: bank, Logger: logger})
	require.NoError(t, err)

	a, err := base.PredictAddress(applesAddress, orangesAddress)
	require.NoError(t, err)
	b, err := other.PredictAddress(applesAddress, orangesAddress)
	require.NoError(t, err)
	c, err := templated.PredictAddress(applesAddress, orangesAddress)
	require.NoError(t, err)
	again, err := newRegistry(t, bank, nil, nil).PredictAddress(orangesAddress, applesAddress)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, again)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := newRegistry(t, newBank(t), nil, nil)
	missing := common.HexToHash("0x1234")

	_, err := r.Lookup(missing)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = r.PoolAddress(missing)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = r.View(missing)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = r.LookupAddress(unknownAddress)
	assert.ErrorIs(t, err, ErrUnknownPool)
	err = r.Do(missing, func(*constantproduct.Pool) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestRegistry_PairsForAsset(t *testing.T) {
	r := newRegistry(t, newBank(t), nil, nil)

	ao, err := r.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)
	po, err := r.CreatePool(pearsAddress, orangesAddress)
	require.NoError(t, err)

	assert.Equal(t, []Pair{ao, po}, r.Pairs())
	assert.Equal(t, []Pair{ao, po}, r.PairsForAsset(orangesAddress))
	assert.Equal(t, []Pair{ao}, r.PairsForAsset(applesAddress))
	assert.Equal(t, []Pair{po}, r.PairsForAsset(pearsAddress))
	assert.Nil(t, r.PairsForAsset(unknownAddress))
	assert.Equal(t, "Pears/Oranges", po.Label)

	pairs := r.Pairs()
	pairs[0].Label = "tampered"
	assert.Equal(t, "Apples/Oranges", r.Pairs()[0].Label)
}

func TestRegistry_LookupAssets(t *testing.T) {
	r := newRegistry(t, newBank(t), nil, nil)

	ao, err := r.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)
	po, err := r.CreatePool(pearsAddress, orangesAddress)
	require.NoError(t, err)

	got, err := r.LookupAssets(orangesAddress, applesAddress)
	require.NoError(t, err)
	assert.Equal(t, ao, got)
	got, err = r.LookupAssets(orangesAddress, pearsAddress)
	require.NoError(t, err)
	assert.Equal(t, po, got)

	// both assets trade, but not against each other
	_, err = r.LookupAssets(applesAddress, pearsAddress)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = r.LookupAssets(applesAddress, unknownAddress)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = r.LookupAssets(applesAddress, applesAddress)
	assert.ErrorIs(t, err, ErrIdenticalAssets)
}

func TestRegistry_RestoresFromStore(t *testing.T) {
	bank := newBank(t)
	store := dbm.NewMemDB()

	first := newRegistry(t, bank, store, nil)
	_, err := first.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)
	_, err = first.CreatePool(pearsAddress, applesAddress)
	require.NoError(t, err)

	restored := newRegistry(t, bank, store, nil)
	assert.Equal(t, first.Pairs(), restored.Pairs())
	assert.Equal(t, first.PairsForAsset(applesAddress), restored.PairsForAsset(applesAddress))
	byAssets, err := restored.LookupAssets(applesAddress, pearsAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), byAssets.ID)

	_, err = restored.CreatePool(orangesAddress, applesAddress)
	assert.ErrorIs(t, err, ErrPairAlreadyExists)

	third, err := restored.CreatePool(orangesAddress, pearsAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), third.ID)

	t.Run("A different template cannot reopen the store", func(t *testing.T) {
		_, err := NewRegistry(&Config{
			Address:      registryAddress,
			PoolTemplate: []byte("another pool"),
			Assets:       bank,
			Store:        store,
			Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("Unknown assets cannot be restored", func(t *testing.T) {
		_, err := NewRegistry(&Config{
			Address: registryAddress,
			Assets:  ledger.NewBank(),
			Store:   store,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		assert.ErrorIs(t, err, ledger.ErrUnknownAsset)
	})
}

func TestRegistry_DoSerializesPoolOperations(t *testing.T) {
	bank := newBank(t)
	r := newRegistry(t, bank, nil, nil)
	pair, err := r.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)

	apples, err := bank.Get(applesAddress)
	require.NoError(t, err)
	oranges, err := bank.Get(orangesAddress)
	require.NoError(t, err)

	const (
		workers  = 8
		deposits = 10
	)
	amount := uint256.NewInt(1_000_000_000)
	unlimited := new(uint256.Int).SetAllOne()

	var wg sync.WaitGroup
	errs := make(chan error, workers*deposits)
	for w := 0; w < workers; w++ {
		account := common.BigToAddress(uint256.NewInt(uint64(1000 + w)).ToBig())
		require.NoError(t, apples.Mint(account, new(uint256.Int).Mul(amount, uint256.NewInt(deposits))))
		require.NoError(t, oranges.Mint(account, new(uint256.Int).Mul(amount, uint256.NewInt(deposits))))
		require.NoError(t, apples.Approve(account, pair.Address, unlimited))
		require.NoError(t, oranges.Approve(account, pair.Address, unlimited))

		wg.Add(1)
		go func(account common.Address) {
			defer wg.Done()
			for i := 0; i < deposits; i++ {
				errs <- r.Do(pair.PairID, func(p *constantproduct.Pool) error {
					_, err := p.Deposit(account, amount, amount, account)
					return err
				})
				_, _ = r.View(pair.PairID)
			}
		}(account)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := r.View(pair.PairID)
	require.NoError(t, err)
	total := new(uint256.Int).Mul(amount, uint256.NewInt(workers*deposits))
	assert.Equal(t, total.Dec(), view.ReserveA.Dec())
	assert.Equal(t, total.Dec(), view.ReserveB.Dec())
	assert.Equal(t, total.Dec(), apples.BalanceOf(pair.Address).Dec())

	require.NoError(t, r.Do(pair.PairID, func(p *constantproduct.Pool) error {
		return p.CheckInvariants()
	}))

	// the returned view is a copy
	view.ReserveA.SetUint64(1)
	again, err := r.View(pair.PairID)
	require.NoError(t, err)
	assert.Equal(t, total.Dec(), again.ReserveA.Dec())
}
