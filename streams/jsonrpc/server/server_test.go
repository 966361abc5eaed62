package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddress = common.HexToAddress("0x0000000000000000000000000000000000a11ce5")
	applesAddress   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	orangesAddress  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

func newTestServer(t *testing.T, withLedger bool) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bank := ledger.NewBank()
	_, err := bank.NewAsset(tokenregistry.Token{Address: applesAddress, Name: "Apples", Symbol: "APL", Decimals: 18})
	require.NoError(t, err)
	_, err = bank.NewAsset(tokenregistry.Token{Address: orangesAddress, Name: "Oranges", Symbol: "ORG", Decimals: 18})
	require.NoError(t, err)

	feed := engine.NewFeed()
	registry, err := pairregistry.NewRegistry(&pairregistry.Config{Address: registryAddress, Assets: bank, Events: feed, Logger: logger})
	require.NoError(t, err)

	promRegistry := prometheus.NewRegistry()
	r, err := router.NewRouter(&router.Config{Registry: registry, Feed: feed, Registerer: promRegistry, Logger: logger})
	require.NoError(t, err)

	cfg := &Config{
		ListenAddr: "127.0.0.1:0",
		Router:     r,
		Gatherer:   promRegistry,
		Logger:     logger,
	}
	if withLedger {
		cfg.Bank = bank
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func TestNewServer_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	testCases := []struct {
		name string
		cfg  *Config
	}{
		{name: "Missing address", cfg: &Config{Logger: logger}},
		{name: "Missing router", cfg: &Config{ListenAddr: ":0", Logger: logger}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewServer(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestServer_HTTPAndWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := httptest.NewServer(newTestServer(t, true).Handler())
	defer srv.Close()

	httpClient, err := rpc.DialHTTP(srv.URL)
	require.NoError(t, err)
	defer httpClient.Close()

	wsClient, err := rpc.DialContext(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+WebsocketPath)
	require.NoError(t, err)
	defer wsClient.Close()

	events := make(chan *api.Event, 1)
	sub, err := wsClient.Subscribe(ctx, api.Namespace, events, api.EventsSubscriptionMethod)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var pair api.Pair
	require.NoError(t, httpClient.CallContext(ctx, &pair, "amm_createPool", applesAddress, orangesAddress))
	assert.Equal(t, "Apples/Oranges", pair.Label)

	select {
	case ev := <-events:
		assert.Equal(t, engine.EventPoolCreated, ev.Kind)
		assert.Equal(t, pair.PairID, ev.PairID)
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for pool_created")
	}

	var assets []tokenregistry.Token
	require.NoError(t, httpClient.CallContext(ctx, &assets, "ledger_assets"))
	assert.Len(t, assets, 2)
}

func TestServer_LedgerNamespaceIsOptional(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, false).Handler())
	defer srv.Close()

	client, err := rpc.DialHTTP(srv.URL)
	require.NoError(t, err)
	defer client.Close()

	var assets []tokenregistry.Token
	assert.Error(t, client.Call(&assets, "ledger_assets"))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false)
	_, err := s.exchange.CreatePool(applesAddress, orangesAddress)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["pools"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "amm_registry_pools 1")
	assert.Contains(t, string(body), `amm_router_operations_total{op="create_pool",result="ok"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, false).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s := newTestServer(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
