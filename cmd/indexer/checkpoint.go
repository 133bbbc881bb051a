package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betIndexer/internal/config"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or seed the last processed block",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpointStores(cmd, func(ctx context.Context, stores *storeSet, _ *zap.Logger) error {
				block, err := stores.Checkpoints.LoadCheckpoint(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), block)
				return nil
			})
		},
	}
	addStoreFlags(show)

	set := &cobra.Command{
		Use:   "set <block>",
		Short: "Overwrite the checkpoint, e.g. to skip syncing from genesis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid block number %q: %w", args[0], err)
			}
			return withCheckpointStores(cmd, func(ctx context.Context, stores *storeSet, logger *zap.Logger) error {
				previous, err := stores.Checkpoints.LoadCheckpoint(ctx)
				if err != nil {
					return err
				}
				if err := stores.Checkpoints.SaveCheckpoint(ctx, block); err != nil {
					return err
				}
				logger.Info("checkpoint set", zap.Uint64("previous", previous), zap.Uint64("block", block))
				return nil
			})
		},
	}
	addStoreFlags(set)

	cmd.AddCommand(show, set)
	return cmd
}

func withCheckpointStores(cmd *cobra.Command, fn func(ctx context.Context, stores *storeSet, logger *zap.Logger) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	return fn(ctx, stores, logger)
}
