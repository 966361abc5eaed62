package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const (
	flagWS    = "ws"
	flagLimit = "limit"

	defaultWS = "ws://127.0.0.1:8545/ws"
)

// WatchCmd streams exchange events as JSON lines, reconnecting as needed.
func WatchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [pair-id | asset-x asset-y]",
		Short: "Stream exchange events",
		Long: `Stream pool creations, deposits, withdrawals and swaps as JSON lines. With a
pair id or two assets only that pair's events are shown. The stream survives
daemon restarts.

Example:
  $ ammd watch APL ORG --limit 10`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, _ := cmd.Flags().GetString(flagWS)
			limit, _ := cmd.Flags().GetUint(flagLimit)

			var pairID *common.Hash
			if len(args) > 0 {
				ctx, c, done, err := opts.dial(cmd)
				if err != nil {
					return err
				}
				id, err := resolvePair(ctx, c, args)
				done()
				if err != nil {
					return err
				}
				pairID = &id
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			stream, err := client.NewEventStream(ctx, client.StreamConfig{
				URL:        wsURL,
				Logger:     logger,
				BufferSize: 64,
				PairID:     pairID,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			var seen uint
			for {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-stream.Err():
					if !ok {
						return nil
					}
					return err
				case ev := <-stream.Events():
					if err := enc.Encode(ev); err != nil {
						return err
					}
					seen++
					if limit > 0 && seen >= limit {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().String(flagWS, defaultWS, "daemon websocket endpoint")
	cmd.Flags().Uint(flagLimit, 0, "exit after this many events (0 streams forever)")
	return cmd
}
