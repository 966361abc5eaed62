package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// LedgerCmd groups asset ledger queries and transfers.
func LedgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and move ledger assets",
	}
	cmd.AddCommand(
		ledgerAssetsCmd(opts),
		ledgerBalanceCmd(opts),
		ledgerAllowanceCmd(opts),
		ledgerApproveCmd(opts),
		ledgerTransferCmd(opts),
	)
	return cmd
}

func ledgerAssetsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "List the assets the ledger knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			tokens, err := c.Assets(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tDECIMALS\tADDRESS")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Symbol, t.Name, t.Decimals, t.Address.Hex())
			}
			return w.Flush()
		},
	}
}

func ledgerBalanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [asset] [account]",
		Short: "Print an account's balance of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[1])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			asset, err := resolveAsset(ctx, c, args[0])
			if err != nil {
				return err
			}
			balance, err := c.BalanceOf(ctx, asset, account)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), balance.Dec())
			return err
		},
	}
}

func ledgerAllowanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "allowance [asset] [owner] [spender]",
		Short: "Print how much of owner's asset spender may move",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAccount(args[1])
			if err != nil {
				return err
			}
			spender, err := parseAccount(args[2])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			asset, err := resolveAsset(ctx, c, args[0])
			if err != nil {
				return err
			}
			allowance, err := c.Allowance(ctx, asset, owner, spender)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), allowance.Dec())
			return err
		},
	}
}

func ledgerApproveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [asset] [spender] [amount]",
		Short: "Let spender move up to amount of the caller's asset",
		Long: `Let spender move up to amount of the caller's asset. Pools pull deposits and
swap inputs through allowances, so approve the pool address (see
"ammd pool address") before adding liquidity or swapping. "max" approves
without limit.

Example:
  $ ammd ledger approve APL 0x5dC4... max --from 0xf39F...`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			spender, err := parseAccount(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			asset, err := resolveAsset(ctx, c, args[0])
			if err != nil {
				return err
			}
			return c.Approve(ctx, asset, from, spender, amount)
		},
	}
	addFromFlag(cmd)
	return cmd
}

func ledgerTransferCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer [asset] [to] [amount]",
		Short: "Send the caller's asset to another account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			to, err := parseAccount(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			ctx, c, done, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			asset, err := resolveAsset(ctx, c, args[0])
			if err != nil {
				return err
			}
			return c.Transfer(ctx, asset, from, to, amount)
		},
	}
	addFromFlag(cmd)
	return cmd
}
