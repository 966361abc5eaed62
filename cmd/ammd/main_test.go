package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	apples   = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	oranges  = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	tenKilo  = "10000000000000000000000"
	e18      = "000000000000000000"
	maxUint  = "max"
	timeout5 = 5 * time.Second
)

func testConfig() *config.Config {
	return &config.Config{
		Log:      config.LogConfig{Level: "info", Format: "json"},
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0", AllowedOrigins: []string{"*"}, EventBuffer: 16, Metrics: true},
		Registry: config.RegistryConfig{Address: "0x0000000000000000000000000000000000a11ce5"},
		Store:    config.StoreConfig{Backend: config.BackendMemDB},
		Genesis: config.GenesisConfig{Assets: []config.AssetConfig{
			{Address: apples, Name: "Apples", Symbol: "APL", Decimals: 18, Holders: []config.HolderConfig{{Account: owner, Balance: tenKilo}}},
			{Address: oranges, Name: "Oranges", Symbol: "ORG", Decimals: 18, Holders: []config.HolderConfig{{Account: owner, Balance: tenKilo}}},
		}},
	}
}

// startDaemon serves a freshly wired daemon over httptest and returns its URL.
func startDaemon(t *testing.T) string {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	d, err := newDaemon(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	srv := httptest.NewServer(d.server.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDaemon_Wiring(t *testing.T) {
	d, err := newDaemon(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer d.Close()

	require.Len(t, d.bank.Tokens(), 2)
	_, err = d.router.CreatePool(common.HexToAddress(apples), common.HexToAddress(oranges))
	require.NoError(t, err)

	families, err := d.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["amm_router_operations_total"])
	assert.True(t, names["amm_registry_pools"])
	assert.True(t, names["go_goroutines"])
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout5)
	defer cancel()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "ammd %s", strings.Join(args, " "))
	return out
}

// openPool creates the Apples/Oranges pool and approves it to pull both assets.
func openPool(t *testing.T, url string) api.Pair {
	t.Helper()
	var pair api.Pair
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "pool", "create", "APL", "ORG", "--rpc", url)), &pair))
	for _, asset := range []string{"APL", "ORG"} {
		mustExecute(t, "ledger", "approve", asset, pair.Address.Hex(), maxUint, "--from", owner, "--rpc", url)
	}
	return pair
}

func TestCLI_PoolLifecycle(t *testing.T) {
	url := startDaemon(t)

	predicted := strings.TrimSpace(mustExecute(t, "pool", "address", "APL", "ORG", "--rpc", url))
	pair := openPool(t, url)
	assert.Equal(t, predicted, pair.Address.Hex())
	assert.Equal(t, "Apples/Oranges", pair.Label)

	// amounts follow the order the assets are named in
	var deposit api.Deposit
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t,
		"liquidity", "add", "ORG", "APL", "200"+e18, "300"+e18, "--from", owner, "--rpc", url)), &deposit))
	assert.Equal(t, "244948974278317808819", deposit.Minted.ToInt().String())
	assert.Equal(t, "300"+e18, deposit.ReserveA.ToInt().String())

	var quote api.Quote
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "quote", "APL", "ORG", "100"+e18, "--rpc", url)), &quote))
	assert.Equal(t, "50"+e18, quote.AmountBOut.ToInt().String())

	var swap api.Swap
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t,
		"swap", "APL", "ORG", "100"+e18, "--from", owner, "--rpc", url)), &swap))
	assert.Equal(t, "50"+e18, swap.AmountBOut.ToInt().String())
	assert.Equal(t, "400"+e18, swap.ReserveA.ToInt().String())
	assert.Equal(t, "150"+e18, swap.ReserveB.ToInt().String())

	list := mustExecute(t, "pool", "list", "--rpc", url)
	assert.Contains(t, list, "Apples/Oranges")
	assert.Contains(t, list, "400"+e18)
	assert.Contains(t, list, "150"+e18)
	assert.Contains(t, mustExecute(t, "pool", "list", "--asset", "ORG", "--rpc", url), pair.Address.Hex())

	var pool api.Pool
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "pool", "info", pair.PairID.Hex(), "--rpc", url)), &pool))
	assert.Equal(t, pair, pool.Pair)
	assert.Equal(t, "244948974278317808819", pool.TotalSupply.ToInt().String())

	var bySymbols api.Pool
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "pool", "info", "ORG", "APL", "--rpc", url)), &bySymbols))
	assert.Equal(t, pool, bySymbols)

	balance := strings.TrimSpace(mustExecute(t, "liquidity", "balance", "APL", "ORG", owner, "--rpc", url))
	assert.Equal(t, "244948974278317808819", balance)
	assert.Equal(t, "9600"+e18, strings.TrimSpace(mustExecute(t, "ledger", "balance", "APL", owner, "--rpc", url)))
	assert.Equal(t, "9850"+e18, strings.TrimSpace(mustExecute(t, "ledger", "balance", oranges, owner, "--rpc", url)))

	var withdrawal api.Withdrawal
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t,
		"liquidity", "remove", pair.PairID.Hex(), balance, "--from", owner, "--rpc", url)), &withdrawal))
	assert.Equal(t, balance, withdrawal.Burned.ToInt().String())
	assert.Equal(t, "0", strings.TrimSpace(mustExecute(t, "liquidity", "balance", pair.PairID.Hex(), owner, "--rpc", url)))
}

func TestCLI_LedgerCommands(t *testing.T) {
	url := startDaemon(t)
	recipient := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	assets := mustExecute(t, "ledger", "assets", "--rpc", url)
	assert.Contains(t, assets, "APL")
	assert.Contains(t, assets, "Oranges")

	mustExecute(t, "ledger", "transfer", "APL", recipient, "1"+e18, "--from", owner, "--rpc", url)
	assert.Equal(t, "1"+e18, strings.TrimSpace(mustExecute(t, "ledger", "balance", "APL", recipient, "--rpc", url)))

	mustExecute(t, "ledger", "approve", "ORG", recipient, "5", "--from", owner, "--rpc", url)
	assert.Equal(t, "5", strings.TrimSpace(mustExecute(t, "ledger", "allowance", "ORG", owner, recipient, "--rpc", url)))
}

func TestCLI_LiquidityTransfer(t *testing.T) {
	url := startDaemon(t)
	recipient := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	openPool(t, url)
	mustExecute(t, "liquidity", "add", "APL", "ORG", "300"+e18, "200"+e18, "--from", owner, "--rpc", url)
	mustExecute(t, "liquidity", "transfer", "APL", "ORG", recipient, "1"+e18, "--from", owner, "--rpc", url)

	assert.Equal(t, "1"+e18, strings.TrimSpace(mustExecute(t, "liquidity", "balance", "APL", "ORG", recipient, "--rpc", url)))
	assert.Equal(t, "243948974278317808819", strings.TrimSpace(mustExecute(t, "liquidity", "balance", "APL", "ORG", owner, "--rpc", url)))
}

func TestCLI_Errors(t *testing.T) {
	url := startDaemon(t)
	openPool(t, url)

	testCases := []struct {
		name    string
		args    []string
		wantErr error
		errText string
	}{
		{
			name:    "Identical assets",
			args:    []string{"pool", "create", "APL", "APL"},
			wantErr: pairregistry.ErrIdenticalAssets,
		},
		{
			name:    "Pair already exists",
			args:    []string{"pool", "create", "APL", "ORG"},
			wantErr: pairregistry.ErrPairAlreadyExists,
		},
		{
			name:    "Swap against an empty pool",
			args:    []string{"swap", "APL", "ORG", "1" + e18, "--from", owner},
			wantErr: constantproduct.ErrInsufficientLiquidityForTrade,
		},
		{
			name:    "Initial liquidity below the minimum",
			args:    []string{"liquidity", "add", "APL", "ORG", "1000", "1000", "--from", owner},
			wantErr: constantproduct.ErrInsufficientInitialLiquidity,
		},
		{
			name:    "Unknown symbol",
			args:    []string{"ledger", "balance", "PEAR", owner},
			errText: `unknown asset "PEAR"`,
		},
		{
			name:    "Invalid amount",
			args:    []string{"quote", "APL", "ORG", "lots"},
			errText: `invalid amount "lots"`,
		},
		{
			name:    "Invalid pair id",
			args:    []string{"pool", "info", "0x1234"},
			errText: `invalid pair id "0x1234"`,
		},
		{
			name:    "Missing caller",
			args:    []string{"swap", "APL", "ORG", "1"},
			errText: `required flag(s) "from" not set`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, append(tc.args, "--rpc", url)...)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			}
			if tc.errText != "" {
				assert.Contains(t, err.Error(), tc.errText)
			}
		})
	}
}

func TestCLI_RPCFromEnvironment(t *testing.T) {
	url := startDaemon(t)
	t.Setenv("AMMD_RPC", url)

	assert.Contains(t, mustExecute(t, "ledger", "assets"), "APL")
}

func TestCLI_Watch(t *testing.T) {
	url := startDaemon(t)
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	pair := openPool(t, url)
	mustExecute(t, "liquidity", "add", "APL", "ORG", "300"+e18, "200"+e18, "--from", owner, "--rpc", url)

	var (
		out      bytes.Buffer
		watchErr error
		done     = make(chan struct{})
	)
	go func() {
		defer close(done)
		cmd := NewRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"watch", "APL", "ORG", "--limit", "1", "--ws", wsURL, "--rpc", url})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		watchErr = cmd.ExecuteContext(ctx)
	}()

	// the subscription starts asynchronously, so keep trading until it sees one
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
		}
		_, _ = execute(t, "swap", "APL", "ORG", "1"+e18, "--from", owner, "--rpc", url)
		return false
	}, 8*time.Second, 100*time.Millisecond)

	require.NoError(t, watchErr)
	var ev api.Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &ev))
	assert.Equal(t, engine.EventSwap, ev.Kind)
	assert.Equal(t, pair.PairID, ev.PairID)
	assert.Equal(t, pair.Address, ev.Pool)
}

func TestCLI_ConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ammd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: 0.0.0.0:9545
genesis:
  assets:
    - address: "`+apples+`"
      name: Apples
      symbol: APL
      decimals: 18
`), 0o600))
	t.Setenv("AMMD_LOG_LEVEL", "debug")

	out := mustExecute(t, "config", "show", "--config", path)
	assert.Contains(t, out, "0.0.0.0:9545")
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, "symbol: APL")
	assert.Contains(t, out, "backend: memdb")

	_, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
