package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
	"betIndexer/internal/storage"
)

const checkpointRowID = 1

// Options tunes the connection pool.
type Options struct {
	MaxConns int32
}

// Store provides Postgres persistence for bets and the checkpoint.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureCheckpoint creates the checkpoint row with seed if it does not exist yet.
func (s *Store) EnsureCheckpoint(ctx context.Context, seed uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_state (id, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO NOTHING
	`, checkpointRowID, int64(seed))
	return classify(err)
}

// LoadCheckpoint returns the last processed block, or 0 when no row exists.
func (s *Store) LoadCheckpoint(ctx context.Context) (uint64, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM app_state WHERE id=$1`, checkpointRowID)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, classify(err)
	}
	return uint64(block), nil
}

// SaveCheckpoint overwrites the last processed block.
func (s *Store) SaveCheckpoint(ctx context.Context, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_state (id, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, checkpointRowID, int64(block))
	return classify(err)
}

// UpsertBet inserts a bet unless one with the same block and transaction hash exists.
func (s *Store) UpsertBet(ctx context.Context, rec model.BetRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO bet_placed (
			bet, amount, has_claimed, claimable_amount, no_probability, yes_probability,
			user_address, profile, contract_address, block_number, transaction_hash, from_address
		) VALUES ($1, $2::numeric, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (block_number, transaction_hash) DO NOTHING
	`,
		rec.Direction,
		codec.ScaledString(rec.Amount),
		rec.HasClaimed,
		codec.ScaledString(rec.ClaimableAmount),
		codec.ScaledString(rec.NoProbability),
		codec.ScaledString(rec.YesProbability),
		rec.UserAddress,
		rec.Profile,
		rec.ContractAddress,
		int64(rec.BlockNumber),
		rec.TransactionHash,
		rec.FromAddress,
	)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountBets returns the number of stored bets.
func (s *Store) CountBets(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bet_placed`).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// classify marks connection loss, contention and timeouts as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isTransientCode(pgErr.Code) {
			return storage.Transient(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return storage.Transient(err)
	}
	return err
}

func isTransientCode(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", "40P01", "53300", "57P01", "57P02", "57P03":
		return true
	}
	return false
}
