package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"betIndexer/internal/chain"
	"betIndexer/internal/config"
	"betIndexer/internal/decoder"
	"betIndexer/internal/indexer"
	"betIndexer/internal/metrics"
	"betIndexer/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Starknet BetPlace event indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the chain and store bet events",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "Starknet JSON-RPC URL")
	addStoreFlags(runCmd)
	runCmd.Flags().String("event-name", "BetPlace", "event name to index")
	runCmd.Flags().String("profile", decoder.ProfileV2.Name, "payload decoding profile (v1, v2, v3)")
	runCmd.Flags().Int32("amount-decimals", -1, "amount scale override, -1 keeps the profile default")
	runCmd.Flags().Int32("odds-decimals", -1, "odds scale override, -1 keeps the profile default")
	runCmd.Flags().String("allowlist", "config", "contract allowlist source (config, file, redis)")
	runCmd.Flags().StringSlice("contracts", nil, "contract addresses (comma-separated)")
	runCmd.Flags().String("allowlist-file", "", "YAML allowlist path")
	runCmd.Flags().String("redis-addr", "", "Redis address for the allowlist")
	runCmd.Flags().String("redis-key", "bet-indexer:contracts", "Redis hash holding the allowlist")
	runCmd.Flags().Duration("poll-interval", 30*time.Second, "delay between cycles")
	runCmd.Flags().Int("page-size", 100, "events per RPC page")
	runCmd.Flags().Uint64("range-size", 1, "blocks per fetch range")
	runCmd.Flags().Int("fetch-concurrency", 1, "contracts fetched in parallel per range")
	runCmd.Flags().String("checkpoint-policy", "strict", "checkpoint advancement on fetch failure (strict, lenient)")
	runCmd.Flags().Int("max-retries", 5, "maximum cycle retries on transient errors")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("max-retry-backoff", 30*time.Second, "retry backoff cap")
	runCmd.Flags().Float64("rpc-rate-limit", 0, "RPC requests per second, 0 disables throttling")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics and /healthz, empty disables")
	runCmd.Flags().String("decode-errors", "", "JSONL file for undecodable payloads")
	runCmd.Flags().Int("seen-cache-size", 10000, "recently stored event keys kept in memory")
	runCmd.Flags().Bool("once", false, "run a single cycle and exit")

	root.AddCommand(runCmd)
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newCheckpointCmd())
	root.AddCommand(newDecodeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", "postgres", "event store (postgres, sqlite)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (postgres:// URL)")
	cmd.Flags().String("sqlite-path", "./data/bets.db", "SQLite database path")
	cmd.Flags().String("checkpoint-backend", "db", "checkpoint store (db, file)")
	cmd.Flags().String("checkpoint-file", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Uint64("start-block", 0, "checkpoint seed used when none is stored")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
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

	if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := indexer.ParseCheckpointPolicy(cfg.CheckpointPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(cfg.RPCURL, chain.Options{RateLimit: cfg.RPCRateLimit})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	contracts, err := loadContracts(ctx, cfg)
	if err != nil {
		return err
	}

	dec, err := decoder.New(decoder.Config{
		Profile:        cfg.Profile,
		AmountDecimals: cfg.AmountDecimals,
		OddsDecimals:   cfg.OddsDecimals,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	runner, err := indexer.NewRunner(indexer.RunConfig{
		Contracts:        contracts,
		EventKey:         chain.EventKey(cfg.EventName),
		PageSize:         cfg.PageSize,
		RangeSize:        cfg.RangeSize,
		FetchConcurrency: cfg.FetchConcurrency,
		PollInterval:     cfg.PollInterval,
		CheckpointPolicy: policy,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
		MaxRetryBackoff:  cfg.MaxRetryBackoff,
		SeenCacheSize:    cfg.SeenCacheSize,
		Once:             cfg.Once,
	}, indexer.Deps{
		Chain:        chainClient,
		Checkpoints:  stores.Checkpoints,
		Events:       stores.Events,
		Decoder:      dec,
		DecodeErrors: storage.NewJsonlDecodeErrors(cfg.DecodeErrors),
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	profile := dec.Profile()
	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("checkpoint_backend", cfg.CheckpointBackend),
		zap.String("event", cfg.EventName),
		zap.String("profile", profile.Name),
		zap.Int32("amount_decimals", profile.AmountDecimals),
		zap.Int32("odds_decimals", profile.OddsDecimals),
		zap.Int("contracts", len(contracts)),
		zap.Uint64("range_size", cfg.RangeSize),
		zap.String("checkpoint_policy", string(policy)),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("once", cfg.Once),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return runner.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, reg, map[string]metrics.Check{
			"db":  stores.Ping,
			"rpc": chainClient.Ping,
		}, logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("indexer stopped", zap.Error(err))
		return err
	}
	logger.Info("indexer stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"run_id": uuid.NewString()}

	return cfg.Build()
}
