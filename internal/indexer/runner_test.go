package indexer

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stretchr/testify/require"

	"betIndexer/internal/chain"
	"betIndexer/internal/decoder"
	"betIndexer/internal/model"
	"betIndexer/internal/storage"
	"betIndexer/internal/storage/sqlite"
)

var testContract = new(felt.Felt).SetUint64(0xbe7)

type fakeChain struct {
	mu        sync.Mutex
	height    uint64
	heightErr error
	events    []model.RawEvent
	failFrom  map[uint64]bool
	onFetch   func()
	queries   []chain.EventQuery
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.height, nil
}

func (f *fakeChain) FetchEvents(_ context.Context, q chain.EventQuery) ([]model.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.failFrom[q.FromBlock] {
		return nil, errors.New("rpc unavailable")
	}
	var out []model.RawEvent
	for _, ev := range f.events {
		if ev.FromAddress.Equal(q.Contract) && ev.BlockNumber >= q.FromBlock && ev.BlockNumber <= q.ToBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeChain) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type flakyStore struct {
	storage.EventStore
	failures int
	err      error
}

func (s *flakyStore) UpsertBet(ctx context.Context, rec model.BetRecord) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.failures > 0 {
		s.failures--
		return false, storage.Transient(errors.New("connection reset"))
	}
	return s.EventStore.UpsertBet(ctx, rec)
}

type memorySink struct {
	records []model.DecodeError
}

func (s *memorySink) PutDecodeError(rec model.DecodeError) error {
	s.records = append(s.records, rec)
	return nil
}

func felts(values ...uint64) []*felt.Felt {
	out := make([]*felt.Felt, 0, len(values))
	for _, v := range values {
		out = append(out, new(felt.Felt).SetUint64(v))
	}
	return out
}

func betAt(block, tx uint64, data ...uint64) model.RawEvent {
	return model.RawEvent{
		BlockNumber:     block,
		TransactionHash: new(felt.Felt).SetUint64(tx),
		FromAddress:     testContract,
		Data:            felts(data...),
	}
}

func v2Payload() []uint64 {
	return []uint64{1, 0, 1000, 0, 500, 0, 30, 0, 70, 0}
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "bets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRunner(t *testing.T, cfg RunConfig, deps Deps) *Runner {
	t.Helper()
	if len(cfg.Contracts) == 0 {
		cfg.Contracts = []*felt.Felt{testContract}
	}
	if cfg.EventKey == nil {
		cfg.EventKey = chain.EventKey("BetPlace")
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	if deps.Decoder == nil {
		dec, err := decoder.New(decoder.Config{Profile: "v2", AmountDecimals: -1, OddsDecimals: -1})
		require.NoError(t, err)
		deps.Decoder = dec
	}
	r, err := NewRunner(cfg, deps)
	require.NoError(t, err)
	return r
}

func TestFirstRunStoresEventsAndAdvances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fc := &fakeChain{
		height: 5,
		events: []model.RawEvent{betAt(4, 0xb, v2Payload()...), betAt(2, 0xa, v2Payload()...)},
	}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store})

	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Stored)
	require.Equal(t, uint64(5), res.Checkpoint)
	require.Equal(t, 5, fc.queryCount(), "one query per block with range size 1")

	cp, err := store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), cp)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	require.Equal(t, uint64(2), bets[0].BlockNumber)
	require.Equal(t, "0.000000000000001000", bets[0].Amount)
	require.Equal(t, "30", bets[0].NoProbability)
	require.Equal(t, "70", bets[0].YesProbability)
}

func TestNoNewBlocksSkipsFetch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveCheckpoint(ctx, 10))

	fc := &fakeChain{height: 10}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store})

	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, res.Idle)
	require.Equal(t, 0, fc.queryCount())

	fc.height = 9
	res, err = r.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, res.Idle)

	cp, _ := store.LoadCheckpoint(ctx)
	require.Equal(t, uint64(10), cp)
}

func TestMalformedEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sink := &memorySink{}
	fc := &fakeChain{
		height: 3,
		events: []model.RawEvent{
			betAt(1, 0x1, 1, 0, 1000, 0, 500, 0),
			betAt(2, 0x2, v2Payload()...),
		},
	}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store, DecodeErrors: sink})

	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.DecodeFailures)
	require.Equal(t, 1, res.Stored)
	require.Equal(t, uint64(3), res.Checkpoint)

	require.Len(t, sink.records, 1)
	require.Equal(t, uint64(1), sink.records[0].BlockNumber)
	require.Equal(t, "v2", sink.records[0].Profile)
	require.Len(t, sink.records[0].Data, 6)
}

func TestMalformedEventWritesJsonl(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	path := filepath.Join(t.TempDir(), "decode_errors.jsonl")
	fc := &fakeChain{height: 1, events: []model.RawEvent{betAt(1, 0x1, 1, 2, 3)}}
	r := newTestRunner(t, RunConfig{}, Deps{
		Chain:        fc,
		Checkpoints:  store,
		Events:       store,
		DecodeErrors: storage.NewJsonlDecodeErrors(path),
	})

	_, err := r.RunCycle(ctx)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
	}
	require.Equal(t, 1, lines)
}

func TestFetchFailureCheckpointPolicies(t *testing.T) {
	cases := []struct {
		policy CheckpointPolicy
		want   uint64
	}{
		{PolicyStrict, 2},
		{PolicyLenient, 5},
	}

	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)
			fc := &fakeChain{
				height:   5,
				events:   []model.RawEvent{betAt(3, 0x3, v2Payload()...), betAt(4, 0x4, v2Payload()...)},
				failFrom: map[uint64]bool{3: true},
			}
			r := newTestRunner(t, RunConfig{CheckpointPolicy: tc.policy}, Deps{Chain: fc, Checkpoints: store, Events: store})

			res, err := r.RunCycle(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, res.FetchFailures)
			require.Equal(t, tc.want, res.Checkpoint)

			// the failed block is only re-fetched under the strict policy
			fc.failFrom = nil
			res, err = r.RunCycle(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(5), res.Checkpoint)

			bets, err := store.ListBets(ctx)
			require.NoError(t, err)
			if tc.policy == PolicyStrict {
				require.Len(t, bets, 2)
			} else {
				require.Len(t, bets, 1)
			}
		})
	}
}

func TestStrictFailureAtFirstRangeKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveCheckpoint(ctx, 7))

	fc := &fakeChain{height: 12, failFrom: map[uint64]bool{8: true}}
	r := newTestRunner(t, RunConfig{RangeSize: 5}, Deps{Chain: fc, Checkpoints: store, Events: store})

	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), res.Checkpoint)
	require.Equal(t, 1, fc.queryCount())
}

func TestCheckpointMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fc := &fakeChain{}
	r := newTestRunner(t, RunConfig{RangeSize: 2}, Deps{Chain: fc, Checkpoints: store, Events: store})

	heights := []uint64{3, 3, 8, 6, 11, 11, 20}
	failures := []map[uint64]bool{nil, nil, {6: true}, nil, {4: true}, nil, {14: true}}

	var last, maxHeight uint64
	for i, h := range heights {
		fc.height = h
		fc.failFrom = failures[i]
		if h > maxHeight {
			maxHeight = h
		}

		res, err := r.RunCycle(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Checkpoint, last, "cycle %d lowered the checkpoint", i)
		require.LessOrEqual(t, res.Checkpoint, maxHeight)
		last = res.Checkpoint
	}
	require.Equal(t, uint64(13), last)
}

func TestIdempotentReprocessing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fc := &fakeChain{height: 4, events: []model.RawEvent{betAt(2, 0x2, v2Payload()...)}}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store})

	_, err := r.RunCycle(ctx)
	require.NoError(t, err)

	// rewind as an operator would with `checkpoint set`
	require.NoError(t, store.SaveCheckpoint(ctx, 0))
	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.Stored)
	require.Equal(t, 1, res.Duplicates)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 1)
}

func TestSeenCacheSkipsStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	flaky := &flakyStore{EventStore: store}
	fc := &fakeChain{height: 2, events: []model.RawEvent{betAt(2, 0x2, v2Payload()...)}}
	r := newTestRunner(t, RunConfig{SeenCacheSize: 16}, Deps{Chain: fc, Checkpoints: store, Events: flaky})

	_, err := r.RunCycle(ctx)
	require.NoError(t, err)

	flaky.err = errors.New("store must not be called for cached keys")
	require.NoError(t, store.SaveCheckpoint(ctx, 0))
	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Duplicates)
}

func TestRunRetriesTransientStorage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	flaky := &flakyStore{EventStore: store, failures: 2}
	fc := &fakeChain{height: 2, events: []model.RawEvent{betAt(1, 0x1, v2Payload()...)}}
	r := newTestRunner(t, RunConfig{Once: true, MaxRetries: 3}, Deps{Chain: fc, Checkpoints: store, Events: flaky})

	require.NoError(t, r.Run(ctx))

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	cp, _ := store.LoadCheckpoint(ctx)
	require.Equal(t, uint64(2), cp)
}

func TestRunStopsOnPermanentStorageError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	flaky := &flakyStore{EventStore: store, err: errors.New("column does not exist")}
	fc := &fakeChain{height: 2, events: []model.RawEvent{betAt(1, 0x1, v2Payload()...)}}
	r := newTestRunner(t, RunConfig{MaxRetries: 3, PollInterval: time.Millisecond}, Deps{Chain: fc, Checkpoints: store, Events: flaky})

	err := r.Run(ctx)
	require.Error(t, err)
	require.False(t, storage.IsTransient(err))

	cp, _ := store.LoadCheckpoint(ctx)
	require.Equal(t, uint64(0), cp, "checkpoint must not move past an unstored event")
}

func TestChainHeightErrorIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fc := &fakeChain{heightErr: errors.New("502 bad gateway")}
	r := newTestRunner(t, RunConfig{Once: true, MaxRetries: 1}, Deps{Chain: fc, Checkpoints: store, Events: store})

	_, err := r.RunCycle(ctx)
	require.ErrorIs(t, err, ErrChainHeight)
	require.True(t, retryable(err))

	err = r.Run(ctx)
	require.ErrorIs(t, err, ErrChainHeight)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	fc := &fakeChain{height: 1}
	r := newTestRunner(t, RunConfig{PollInterval: time.Hour}, Deps{Chain: fc, Checkpoints: store, Events: store})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}

func TestParallelFetchKeepsBlockOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	other := new(felt.Felt).SetUint64(0xcafe)

	late := betAt(3, 0x30, v2Payload()...)
	early := betAt(1, 0x10, v2Payload()...)
	early.FromAddress = other

	fc := &fakeChain{height: 3, events: []model.RawEvent{late, early}}
	r := newTestRunner(t, RunConfig{RangeSize: 3, FetchConcurrency: 2, Contracts: []*felt.Felt{testContract, other}},
		Deps{Chain: fc, Checkpoints: store, Events: store})

	res, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Stored)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bets[0].BlockNumber)
	require.Equal(t, uint64(3), bets[1].BlockNumber)
}

func TestParseCheckpointPolicy(t *testing.T) {
	for input, want := range map[string]CheckpointPolicy{"": PolicyStrict, "STRICT": PolicyStrict, "lenient": PolicyLenient} {
		got, err := ParseCheckpointPolicy(input)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseCheckpointPolicy("sometimes")
	require.Error(t, err)
}

func TestStoredAmountKeepsEighteenDecimals(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	oneToken := []uint64{0, 1, 1000000000000000000, 0, 0, 0, 30, 0, 70, 0}
	fc := &fakeChain{height: 1, events: []model.RawEvent{betAt(1, 0x1, oneToken...)}}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store})

	_, err := r.RunCycle(ctx)
	require.NoError(t, err)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	require.Equal(t, "1.000000000000000000", bets[0].Amount)
	require.Equal(t, "0.000000000000000000", bets[0].ClaimableAmount)
}

func TestCancelDuringFetchAbortsCycle(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := &fakeChain{height: 4, events: []model.RawEvent{betAt(1, 0x1, v2Payload()...)}, onFetch: cancel}
	r := newTestRunner(t, RunConfig{}, Deps{Chain: fc, Checkpoints: store, Events: store})

	res, err := r.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, res.Stored)
	require.Equal(t, 0, res.FetchFailures)
	require.Equal(t, 1, fc.queryCount())

	cp, err := store.LoadCheckpoint(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), cp)
}
