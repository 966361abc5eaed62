package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/spf13/cobra"
)

const flagAsset = "asset"

// PoolCmd groups pool management and queries.
func PoolCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Create and inspect pools",
	}
	cmd.AddCommand(
		poolCreateCmd(opts),
		poolInfoCmd(opts),
		poolListCmd(opts),
		poolAddressCmd(opts),
	)
	return cmd
}

func poolCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create [asset-x] [asset-y]",
		Short: "Create the pool for an asset pair",
		Long: `Create the pool for an asset pair. Assets are addresses or ledger symbols;
their order does not matter.

Example:
  $ ammd pool create APL ORG`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			x, y, err := resolveAssets(ctx, c, args[0], args[1])
			if err != nil {
				return err
			}
			pair, err := c.CreatePool(ctx, x, y)
			if err != nil {
				return err
			}
			return printJSON(cmd, pair)
		},
	}
}

func poolInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info [pair-id | asset-x asset-y]",
		Short: "Show a pool's assets, reserves and liquidity supply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			var pool *api.Pool
			if len(args) == 2 {
				x, y, err := resolveAssets(ctx, c, args[0], args[1])
				if err != nil {
					return err
				}
				pool, err = c.GetPoolByAssets(ctx, x, y)
				if err != nil {
					return err
				}
			} else {
				pairID, err := resolvePair(ctx, c, args)
				if err != nil {
					return err
				}
				pool, err = c.GetPool(ctx, pairID)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd, pool)
		},
	}
}

func poolListCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pools in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			var pools []*api.Pool
			asset, _ := cmd.Flags().GetString(flagAsset)
			if asset != "" {
				addr, err := resolveAsset(ctx, c, asset)
				if err != nil {
					return err
				}
				pools, err = c.PoolsForAsset(ctx, addr)
				if err != nil {
					return err
				}
			} else {
				pools, err = c.ListPools(ctx)
				if err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tADDRESS\tRESERVE A\tRESERVE B\tSUPPLY")
			for _, p := range pools {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Label, p.Address.Hex(),
					p.ReserveA.ToInt(), p.ReserveB.ToInt(), p.TotalSupply.ToInt())
			}
			return w.Flush()
		},
	}
	cmd.Flags().String(flagAsset, "", "only list pools trading this asset")
	return cmd
}

func poolAddressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "address [asset-x] [asset-y]",
		Short: "Print the address a pair's pool has or would have",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			x, y, err := resolveAssets(ctx, c, args[0], args[1])
			if err != nil {
				return err
			}
			addr, err := c.PredictPoolAddress(ctx, x, y)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return err
		},
	}
}

// LiquidityCmd groups liquidity provision.
func LiquidityCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liquidity",
		Short: "Provide, withdraw and move pool liquidity",
	}
	cmd.AddCommand(
		liquidityAddCmd(opts),
		liquidityRemoveCmd(opts),
		liquidityBalanceCmd(opts),
		liquidityTransferCmd(opts),
	)
	return cmd
}

func liquidityAddCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [asset-x] [asset-y] [amount-x] [amount-y]",
		Short: "Deposit both assets and mint liquidity to the caller",
		Long: `Deposit both assets and mint liquidity to the caller. Amounts are in base
units and follow the order the assets are given in. After the first deposit
the amounts must match the pool's reserve ratio exactly.

Example:
  $ ammd liquidity add APL ORG 300000000000000000000 200000000000000000000 --from 0xf39F...`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			amountX, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			amountY, err := parseAmount(args[3])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			x, y, err := resolveAssets(ctx, c, args[0], args[1])
			if err != nil {
				return err
			}
			pairID, err := c.PairID(ctx, x, y)
			if err != nil {
				return err
			}
			amountA, amountB := orient(x, y, amountX, amountY)
			deposit, err := c.AddLiquidity(ctx, from, pairID, amountA, amountB)
			if err != nil {
				return err
			}
			return printJSON(cmd, deposit)
		},
	}
	addFromFlag(cmd)
	return cmd
}

func liquidityRemoveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [pair-id | asset-x asset-y] [liquidity]",
		Short: "Burn liquidity and return the proportional reserves to the caller",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			liquidity, err := parseAmount(args[len(args)-1])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			pairID, err := resolvePair(ctx, c, args[:len(args)-1])
			if err != nil {
				return err
			}
			withdrawal, err := c.RemoveLiquidity(ctx, from, pairID, liquidity)
			if err != nil {
				return err
			}
			return printJSON(cmd, withdrawal)
		},
	}
	addFromFlag(cmd)
	return cmd
}

func liquidityBalanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [pair-id | asset-x asset-y] [account]",
		Short: "Print an account's liquidity-token balance",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[len(args)-1])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			pairID, err := resolvePair(ctx, c, args[:len(args)-1])
			if err != nil {
				return err
			}
			balance, err := c.LiquidityOf(ctx, pairID, account)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), balance.Dec())
			return err
		},
	}
}

func liquidityTransferCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer [pair-id | asset-x asset-y] [to] [amount]",
		Short: "Move the caller's liquidity tokens to another account",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			n := len(args)
			to, err := parseAccount(args[n-2])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[n-1])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			pairID, err := resolvePair(ctx, c, args[:n-2])
			if err != nil {
				return err
			}
			return c.TransferLiquidity(ctx, from, pairID, to, amount)
		},
	}
	addFromFlag(cmd)
	return cmd
}

// SwapCmd trades one asset for the other through their pool.
func SwapCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap [asset-in] [asset-out] [amount-in]",
		Short: "Swap an exact input through the pair's pool",
		Long: `Swap an exact input amount of one asset for the other. There is no fee;
the output keeps the product of the reserves at the pool's invariant.

Example:
  $ ammd swap APL ORG 100000000000000000000 --from 0xf39F...`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			amountIn, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			in, out, err := resolveAssets(ctx, c, args[0], args[1])
			if err != nil {
				return err
			}
			pairID, err := c.PairID(ctx, in, out)
			if err != nil {
				return err
			}
			amountA, amountB := orient(in, out, amountIn, nil)
			swap, err := c.Swap(ctx, from, pairID, amountA, amountB)
			if err != nil {
				return err
			}
			return printJSON(cmd, swap)
		},
	}
	addFromFlag(cmd)
	return cmd
}

// QuoteCmd prices a swap without executing it.
func QuoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quote [asset-in] [asset-out] [amount-in]",
		Short: "Price a swap against the pool's current reserves",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amountIn, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			in, out, err := resolveAssets(ctx, c, args[0], args[1])
			if err != nil {
				return err
			}
			pairID, err := c.PairID(ctx, in, out)
			if err != nil {
				return err
			}
			amountA, amountB := orient(in, out, amountIn, nil)
			quote, err := c.QuoteSwap(ctx, pairID, amountA, amountB)
			if err != nil {
				return err
			}
			return printJSON(cmd, quote)
		},
	}
}
