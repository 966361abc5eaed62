package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagConfig  = "config"
	flagRPC     = "rpc"
	flagTimeout = "timeout"
	flagFrom    = "from"

	defaultRPC = "http://127.0.0.1:8545"
)

// options are the resolved global flags, after AMMD_ environment overrides.
type options struct {
	configPath string
	rpcURL     string
	timeout    time.Duration
}

// NewRootCmd builds the ammd command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ammd",
		Short: "Constant-product exchange daemon and client",
		Long: `ammd runs a fee-less constant-product exchange over an in-memory asset
ledger and exposes it over JSON-RPC. The other commands are clients of a
running daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			v.SetEnvPrefix(config.EnvPrefix)
			v.AutomaticEnv()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			opts.configPath = v.GetString(flagConfig)
			opts.rpcURL = v.GetString(flagRPC)
			opts.timeout = v.GetDuration(flagTimeout)
			return nil
		},
	}

	rootCmd.PersistentFlags().String(flagConfig, "", "path to the daemon configuration file")
	rootCmd.PersistentFlags().String(flagRPC, defaultRPC, "daemon JSON-RPC endpoint")
	rootCmd.PersistentFlags().Duration(flagTimeout, 10*time.Second, "timeout for each RPC call")

	rootCmd.AddCommand(
		ServeCmd(opts),
		ConfigCmd(opts),
		PoolCmd(opts),
		LiquidityCmd(opts),
		SwapCmd(opts),
		QuoteCmd(opts),
		LedgerCmd(opts),
		WatchCmd(opts),
	)
	return rootCmd
}

// dial connects to the daemon and returns a context bounded by --timeout.
func (o *options) dial(cmd *cobra.Command) (context.Context, *client.Client, func(), error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	c, err := client.Dial(ctx, o.rpcURL)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to connect to %s: %w", o.rpcURL, err)
	}
	return ctx, c, func() {
		c.Close()
		cancel()
	}, nil
}

func addFromFlag(cmd *cobra.Command) {
	cmd.Flags().String(flagFrom, "", "account acting in the call")
	_ = cmd.MarkFlagRequired(flagFrom)
}

func fromFlag(cmd *cobra.Command) (common.Address, error) {
	s, err := cmd.Flags().GetString(flagFrom)
	if err != nil {
		return common.Address{}, err
	}
	return parseAccount(s)
}

func parseAccount(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid account %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount parses a base-unit decimal amount; "max" is 2^256-1.
func parseAmount(s string) (*uint256.Int, error) {
	if strings.EqualFold(s, "max") {
		return new(uint256.Int).SetAllOne(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// resolveAsset accepts an address or the symbol of a ledger asset.
func resolveAsset(ctx context.Context, c *client.Client, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	tokens, err := c.Assets(ctx)
	if err != nil {
		return common.Address{}, err
	}
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, s) {
			return t.Address, nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown asset %q", s)
}

func resolveAssets(ctx context.Context, c *client.Client, x, y string) (common.Address, common.Address, error) {
	ax, err := resolveAsset(ctx, c, x)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	ay, err := resolveAsset(ctx, c, y)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return ax, ay, nil
}

// resolvePair accepts either a pair id or two assets.
func resolvePair(ctx context.Context, c *client.Client, args []string) (common.Hash, error) {
	if len(args) == 1 {
		if len(args[0]) != 2*common.HashLength+2 || !strings.HasPrefix(args[0], "0x") {
			return common.Hash{}, fmt.Errorf("invalid pair id %q", args[0])
		}
		return common.HexToHash(args[0]), nil
	}
	x, y, err := resolveAssets(ctx, c, args[0], args[1])
	if err != nil {
		return common.Hash{}, err
	}
	return c.PairID(ctx, x, y)
}

// orient maps amounts given for x and y onto the pool's (A, B) order.
func orient(x, y common.Address, amountX, amountY *uint256.Int) (amountA, amountB *uint256.Int) {
	if lower, _ := pairregistry.SortAssets(x, y); lower == x {
		return amountX, amountY
	}
	return amountY, amountX
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
