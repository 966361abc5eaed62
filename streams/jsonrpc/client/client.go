// Package client is a typed JSON-RPC client for the exchange daemon. Errors
// from the server's registered codespaces are restored so callers can match
// them with errors.Is.
package client

import (
	"context"

	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// Client wraps an rpc.Client with the amm and ledger namespaces.
type Client struct {
	c *rpc.Client
}

// Dial connects to the daemon over HTTP or websocket, depending on url's scheme.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// NewClient wraps an existing connection.
func NewClient(c *rpc.Client) *Client {
	return &Client{c: c}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return api.FromRPCError(c.c.CallContext(ctx, result, method, args...))
}

func (c *Client) CreatePool(ctx context.Context, x, y common.Address) (*api.Pair, error) {
	var pair api.Pair
	if err := c.call(ctx, &pair, "amm_createPool", x, y); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (c *Client) PairID(ctx context.Context, x, y common.Address) (common.Hash, error) {
	var id common.Hash
	err := c.call(ctx, &id, "amm_pairId", x, y)
	return id, err
}

func (c *Client) PredictPoolAddress(ctx context.Context, x, y common.Address) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, "amm_predictPoolAddress", x, y)
	return addr, err
}

func (c *Client) GetPool(ctx context.Context, pairID common.Hash) (*api.Pool, error) {
	var pool api.Pool
	if err := c.call(ctx, &pool, "amm_getPool", pairID); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Client) GetPoolByAssets(ctx context.Context, x, y common.Address) (*api.Pool, error) {
	var pool api.Pool
	if err := c.call(ctx, &pool, "amm_getPoolByAssets", x, y); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Client) GetPoolAddress(ctx context.Context, pairID common.Hash) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, "amm_getPoolAddress", pairID)
	return addr, err
}

func (c *Client) ListPools(ctx context.Context) ([]*api.Pool, error) {
	var pools []*api.Pool
	err := c.call(ctx, &pools, "amm_listPools")
	return pools, err
}

func (c *Client) PoolsForAsset(ctx context.Context, asset common.Address) ([]*api.Pool, error) {
	var pools []*api.Pool
	err := c.call(ctx, &pools, "amm_poolsForAsset", asset)
	return pools, err
}

func (c *Client) AddLiquidity(ctx context.Context, from common.Address, pairID common.Hash, amountA, amountB *uint256.Int) (*api.Deposit, error) {
	var d api.Deposit
	if err := c.call(ctx, &d, "amm_addLiquidity", from, pairID, api.ToBig(amountA), api.ToBig(amountB)); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) RemoveLiquidity(ctx context.Context, from common.Address, pairID common.Hash, liquidity *uint256.Int) (*api.Withdrawal, error) {
	var w api.Withdrawal
	if err := c.call(ctx, &w, "amm_removeLiquidity", from, pairID, api.ToBig(liquidity)); err != nil {
		return nil, err
	}
	return &w, nil
}

// Swap trades through pairID. Exactly one of amountAIn and amountBIn must be
// nonzero; a nil amount is sent as zero.
func (c *Client) Swap(ctx context.Context, from common.Address, pairID common.Hash, amountAIn, amountBIn *uint256.Int) (*api.Swap, error) {
	var s api.Swap
	if err := c.call(ctx, &s, "amm_swap", from, pairID, api.ToBig(amountAIn), api.ToBig(amountBIn)); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) QuoteSwap(ctx context.Context, pairID common.Hash, amountAIn, amountBIn *uint256.Int) (*api.Quote, error) {
	var q api.Quote
	if err := c.call(ctx, &q, "amm_quoteSwap", pairID, api.ToBig(amountAIn), api.ToBig(amountBIn)); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) LiquidityOf(ctx context.Context, pairID common.Hash, account common.Address) (*uint256.Int, error) {
	var v hexutil.Big
	if err := c.call(ctx, &v, "amm_liquidityOf", pairID, account); err != nil {
		return nil, err
	}
	return api.FromBig(&v)
}

func (c *Client) TransferLiquidity(ctx context.Context, from common.Address, pairID common.Hash, to common.Address, amount *uint256.Int) error {
	return c.call(ctx, nil, "amm_transferLiquidity", from, pairID, to, api.ToBig(amount))
}

func (c *Client) Assets(ctx context.Context) ([]tokenregistry.Token, error) {
	var tokens []tokenregistry.Token
	err := c.call(ctx, &tokens, "ledger_assets")
	return tokens, err
}

func (c *Client) BalanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	var v hexutil.Big
	if err := c.call(ctx, &v, "ledger_balanceOf", asset, account); err != nil {
		return nil, err
	}
	return api.FromBig(&v)
}

func (c *Client) Allowance(ctx context.Context, asset, owner, spender common.Address) (*uint256.Int, error) {
	var v hexutil.Big
	if err := c.call(ctx, &v, "ledger_allowance", asset, owner, spender); err != nil {
		return nil, err
	}
	return api.FromBig(&v)
}

func (c *Client) Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error {
	return c.call(ctx, nil, "ledger_approve", asset, owner, spender, api.ToBig(amount))
}

func (c *Client) Transfer(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return c.call(ctx, nil, "ledger_transfer", asset, from, to, api.ToBig(amount))
}
