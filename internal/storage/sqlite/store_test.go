package sqlite

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCheckpointSeedAndOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp, err := store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), cp)

	require.NoError(t, store.EnsureCheckpoint(ctx, 500))
	require.NoError(t, store.EnsureCheckpoint(ctx, 900))
	cp, err = store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(500), cp, "seed must only apply once")

	require.NoError(t, store.SaveCheckpoint(ctx, 512))
	cp, err = store.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(512), cp)
}

func TestUpsertBetFirstWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := "0x0000000000000000000000000000000000000000000000000000000000000abc"
	rec := model.BetRecord{
		BlockNumber:     101,
		TransactionHash: "0xaaa",
		FromAddress:     "0x01",
		ContractAddress: "0x01",
		Profile:         "v3",
		Direction:       true,
		Amount:          decimal.RequireFromString("1.000000000000000000"),
		ClaimableAmount: decimal.Zero,
		NoProbability:   decimal.RequireFromString("0.3"),
		YesProbability:  decimal.RequireFromString("0.7"),
		UserAddress:     &user,
	}

	inserted, err := store.UpsertBet(ctx, rec)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := rec
	dup.Amount = decimal.NewFromInt(42)
	inserted, err = store.UpsertBet(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted)

	other := rec
	other.TransactionHash = "0xbbb"
	other.UserAddress = nil
	inserted, err = store.UpsertBet(ctx, other)
	require.NoError(t, err)
	require.True(t, inserted)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	require.Equal(t, "1.000000000000000000", bets[0].Amount)
	require.Equal(t, user, bets[0].UserAddress.String)
	require.False(t, bets[1].UserAddress.Valid)
}

func TestUpsertBetKeepsWideValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	huge := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	rec := model.BetRecord{
		BlockNumber:     7,
		TransactionHash: "0x07",
		FromAddress:     "0x01",
		ContractAddress: "0x01",
		Profile:         "v2",
		Amount:          decimal.RequireFromString(huge),
		ClaimableAmount: decimal.Zero,
		NoProbability:   decimal.Zero,
		YesProbability:  decimal.Zero,
	}
	_, err := store.UpsertBet(ctx, rec)
	require.NoError(t, err)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	require.Equal(t, huge, bets[0].Amount)
}

func TestUpsertBetKeepsProfileScale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oneToken, _ := new(big.Int).SetString("1000000000000000000", 10)
	rec := model.BetRecord{
		BlockNumber:     9,
		TransactionHash: "0x09",
		FromAddress:     "0x01",
		ContractAddress: "0x01",
		Profile:         "v2",
		Amount:          codec.ToFixedPoint(oneToken, 18),
		ClaimableAmount: codec.ToFixedPoint(big.NewInt(0), 18),
		NoProbability:   codec.ToFixedPoint(big.NewInt(30), 0),
		YesProbability:  codec.ToFixedPoint(big.NewInt(70), 0),
	}
	_, err := store.UpsertBet(ctx, rec)
	require.NoError(t, err)

	bets, err := store.ListBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	require.Equal(t, "1.000000000000000000", bets[0].Amount)
	require.Equal(t, "0.000000000000000000", bets[0].ClaimableAmount)
	require.Equal(t, "30", bets[0].NoProbability)
}
