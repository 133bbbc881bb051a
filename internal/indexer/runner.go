package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"betIndexer/internal/chain"
	"betIndexer/internal/codec"
	"betIndexer/internal/decoder"
	"betIndexer/internal/metrics"
	"betIndexer/internal/model"
	"betIndexer/internal/storage"
)

// ErrChainHeight wraps failures to read the latest block. The cycle is retried.
var ErrChainHeight = errors.New("chain height unavailable")

// ChainClient is the subset of the chain client used by the runner.
type ChainClient interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, q chain.EventQuery) ([]model.RawEvent, error)
}

// DecodeErrorSink receives payloads that failed to decode.
type DecodeErrorSink interface {
	PutDecodeError(record model.DecodeError) error
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	Contracts        []*felt.Felt
	EventKey         *felt.Felt
	PageSize         int
	RangeSize        uint64
	FetchConcurrency int
	PollInterval     time.Duration
	CheckpointPolicy CheckpointPolicy
	MaxRetries       int
	RetryBackoff     time.Duration
	MaxRetryBackoff  time.Duration
	SeenCacheSize    int
	Once             bool
}

// Deps are the runner's collaborators. DecodeErrors, Metrics and Logger are optional.
type Deps struct {
	Chain        ChainClient
	Checkpoints  storage.CheckpointStore
	Events       storage.EventStore
	Decoder      *decoder.Decoder
	DecodeErrors DecodeErrorSink
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// CycleResult summarizes one ingestion cycle.
type CycleResult struct {
	Checkpoint     uint64
	Height         uint64
	Idle           bool
	Stored         int
	Duplicates     int
	DecodeFailures int
	FetchFailures  int
}

// Runner polls the chain for bet events and writes them to storage.
type Runner struct {
	cfg     RunConfig
	deps    Deps
	logger  *zap.Logger
	seen    *lru.Cache[string, struct{}]
	nowFunc func() time.Time
}

// NewRunner validates cfg and builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps) (*Runner, error) {
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event store is nil")
	}
	if deps.Decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("at least one contract is required")
	}
	if cfg.EventKey == nil {
		return nil, fmt.Errorf("event key is required")
	}
	if cfg.RangeSize == 0 {
		cfg.RangeSize = 1
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	if cfg.CheckpointPolicy == "" {
		cfg.CheckpointPolicy = PolicyStrict
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		nowFunc: time.Now,
	}
	if cfg.SeenCacheSize > 0 {
		seen, err := lru.New[string, struct{}](cfg.SeenCacheSize)
		if err != nil {
			return nil, fmt.Errorf("seen cache: %w", err)
		}
		r.seen = seen
	}
	return r, nil
}

// Run executes cycles until ctx is cancelled, sleeping PollInterval between them.
// Transient failures skip the cycle after retries; anything else is returned.
func (r *Runner) Run(ctx context.Context) error {
	for {
		err := r.runCycleWithRetry(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !retryable(err) || r.cfg.Once {
				return err
			}
			r.logger.Warn("cycle skipped", zap.Error(err))
		}
		if r.cfg.Once {
			return nil
		}

		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (r *Runner) runCycleWithRetry(ctx context.Context) error {
	attempt := 0
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.cfg.MaxRetryBackoff, retryable, func(ctx context.Context) error {
		if attempt > 0 {
			r.deps.Metrics.StorageRetried()
		}
		attempt++

		started := r.nowFunc()
		res, err := r.RunCycle(ctx)
		took := r.nowFunc().Sub(started)
		switch {
		case err != nil && retryable(err):
			r.deps.Metrics.CycleDone("transient", took)
			r.logger.Warn("cycle failed", zap.Int("attempt", attempt), zap.Error(err))
		case err != nil:
			r.deps.Metrics.CycleDone("fatal", took)
		case res.Idle:
			r.deps.Metrics.CycleDone("idle", took)
		default:
			r.deps.Metrics.CycleDone("ok", took)
		}
		return err
	})
}

func retryable(err error) bool {
	return storage.IsTransient(err) || errors.Is(err, ErrChainHeight)
}

// RunCycle processes every block between the stored checkpoint and the chain
// height, then advances the checkpoint according to the configured policy.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	checkpoint, err := r.deps.Checkpoints.LoadCheckpoint(ctx)
	if err != nil {
		return res, fmt.Errorf("load checkpoint: %w", err)
	}
	res.Checkpoint = checkpoint
	r.deps.Metrics.SetCheckpoint(checkpoint)

	height, err := r.deps.Chain.LatestBlockNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrChainHeight, err)
	}
	res.Height = height
	r.deps.Metrics.SetChainHeight(height)

	if height <= checkpoint {
		res.Idle = true
		r.logger.Debug("no new blocks", zap.Uint64("checkpoint", checkpoint), zap.Uint64("height", height))
		return res, nil
	}

	ranges, err := SplitRange(checkpoint+1, height, r.cfg.RangeSize)
	if err != nil {
		return res, err
	}

	var firstFailed *uint64
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		failed, err := r.processRange(ctx, blockRange, &res)
		if err != nil {
			return res, err
		}
		if failed && firstFailed == nil {
			from := blockRange.From
			firstFailed = &from
		}
	}

	target := height
	if firstFailed != nil && r.cfg.CheckpointPolicy == PolicyStrict {
		target = *firstFailed - 1
	}
	if target > checkpoint {
		if err := r.deps.Checkpoints.SaveCheckpoint(ctx, target); err != nil {
			return res, fmt.Errorf("save checkpoint: %w", err)
		}
		res.Checkpoint = target
		r.deps.Metrics.SetCheckpoint(target)
	}

	r.logger.Info("cycle complete",
		zap.Uint64("from", checkpoint+1),
		zap.Uint64("height", height),
		zap.Uint64("checkpoint", res.Checkpoint),
		zap.Int("stored", res.Stored),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("decode_failures", res.DecodeFailures),
		zap.Int("fetch_failures", res.FetchFailures),
	)
	return res, nil
}

type contractEvent struct {
	contract *felt.Felt
	event    model.RawEvent
}

// processRange fetches every contract's events for one range and stores them in
// block order. It reports whether any fetch failed.
func (r *Runner) processRange(ctx context.Context, blockRange BlockRange, res *CycleResult) (bool, error) {
	fetched := make([][]model.RawEvent, len(r.cfg.Contracts))
	fetchErrs := make([]error, len(r.cfg.Contracts))

	var g errgroup.Group
	g.SetLimit(r.cfg.FetchConcurrency)
	for i, contract := range r.cfg.Contracts {
		i, contract := i, contract
		g.Go(func() error {
			fetched[i], fetchErrs[i] = r.deps.Chain.FetchEvents(ctx, chain.EventQuery{
				Contract:  contract,
				FromBlock: blockRange.From,
				ToBlock:   blockRange.To,
				Key:       r.cfg.EventKey,
				PageSize:  r.cfg.PageSize,
			})
			// fetch failures are per contract; only cancellation aborts the range
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	failed := false
	var events []contractEvent
	for i, contract := range r.cfg.Contracts {
		if err := fetchErrs[i]; err != nil {
			failed = true
			res.FetchFailures++
			r.deps.Metrics.FetchFailed()
			r.logger.Error("fetch events failed",
				zap.String("contract", contract.String()),
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.Error(err),
			)
			continue
		}
		for _, ev := range fetched[i] {
			events = append(events, contractEvent{contract: contract, event: ev})
		}
	}

	sort.SliceStable(events, func(a, b int) bool {
		return events[a].event.BlockNumber < events[b].event.BlockNumber
	})

	for _, ce := range events {
		if err := r.handleEvent(ctx, ce.contract, ce.event, res); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

func (r *Runner) handleEvent(ctx context.Context, contract *felt.Felt, ev model.RawEvent, res *CycleResult) error {
	key := model.BetKey(ev.BlockNumber, codec.FeltHex(ev.TransactionHash))
	if r.seen != nil && r.seen.Contains(key) {
		res.Duplicates++
		r.deps.Metrics.BetStored(false)
		return nil
	}

	profile := r.deps.Decoder.Profile()
	bet, err := r.deps.Decoder.Decode(ev.Data)
	if err != nil {
		res.DecodeFailures++
		r.deps.Metrics.DecodeFailed(profile.Name)
		r.logger.Warn("skip undecodable event",
			zap.Uint64("block", ev.BlockNumber),
			zap.String("tx_hash", ev.TransactionHash.String()),
			zap.String("contract", contract.String()),
			zap.Int("fields", len(ev.Data)),
			zap.Error(err),
		)
		if r.deps.DecodeErrors != nil {
			if sinkErr := r.deps.DecodeErrors.PutDecodeError(buildDecodeError(ev, contract, profile.Name, err, r.nowFunc())); sinkErr != nil {
				r.logger.Warn("record decode error failed", zap.Error(sinkErr))
			}
		}
		return nil
	}

	record := buildBetRecord(ev, contract, bet, profile)
	inserted, err := r.deps.Events.UpsertBet(ctx, record)
	if err != nil {
		return fmt.Errorf("store bet block=%d tx=%s: %w", ev.BlockNumber, record.TransactionHash, err)
	}
	r.deps.Metrics.BetStored(inserted)
	if inserted {
		res.Stored++
		r.logger.Info("bet stored",
			zap.Uint64("block", ev.BlockNumber),
			zap.String("tx_hash", record.TransactionHash),
			zap.String("contract", record.ContractAddress),
		)
	} else {
		res.Duplicates++
	}
	if r.seen != nil {
		r.seen.Add(key, struct{}{})
	}
	return nil
}
