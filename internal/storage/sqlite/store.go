package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
	"betIndexer/internal/storage"
)

// Store wraps SQLite-backed persistence for bets and the checkpoint.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS bet_placed (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  bet               INTEGER NOT NULL,
  amount            TEXT NOT NULL,
  has_claimed       INTEGER NOT NULL,
  claimable_amount  TEXT NOT NULL,
  no_probability    TEXT NOT NULL,
  yes_probability   TEXT NOT NULL,
  user_address      TEXT,
  profile           TEXT NOT NULL,
  contract_address  TEXT NOT NULL,
  block_number      INTEGER NOT NULL,
  transaction_hash  TEXT NOT NULL,
  from_address      TEXT NOT NULL,
  created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(block_number, transaction_hash)
);

CREATE TABLE IF NOT EXISTS app_state (
  id                    INTEGER PRIMARY KEY,
  last_processed_block  INTEGER NOT NULL,
  updated_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// EnsureCheckpoint creates the checkpoint row with seed if it does not exist yet.
func (s *Store) EnsureCheckpoint(ctx context.Context, seed uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_state (id, last_processed_block, updated_at)
VALUES (1, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO NOTHING;
`, int64(seed))
	if err != nil {
		return classify(fmt.Errorf("ensure checkpoint: %w", err))
	}
	return nil
}

// LoadCheckpoint returns the last processed block, or 0 when no row exists.
func (s *Store) LoadCheckpoint(ctx context.Context) (uint64, error) {
	var block int64
	row := s.db.QueryRowContext(ctx, `SELECT last_processed_block FROM app_state WHERE id = 1;`)
	switch err := row.Scan(&block); {
	case err == nil:
		return uint64(block), nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	default:
		return 0, classify(fmt.Errorf("load checkpoint: %w", err))
	}
}

// SaveCheckpoint overwrites the last processed block.
func (s *Store) SaveCheckpoint(ctx context.Context, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_state (id, last_processed_block, updated_at)
VALUES (1, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  last_processed_block=excluded.last_processed_block,
  updated_at=CURRENT_TIMESTAMP;
`, int64(block))
	if err != nil {
		return classify(fmt.Errorf("save checkpoint: %w", err))
	}
	return nil
}

// UpsertBet inserts a bet unless one with the same block and transaction hash exists.
func (s *Store) UpsertBet(ctx context.Context, rec model.BetRecord) (bool, error) {
	var user any
	if rec.UserAddress != nil {
		user = *rec.UserAddress
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO bet_placed (
  bet, amount, has_claimed, claimable_amount, no_probability, yes_probability,
  user_address, profile, contract_address, block_number, transaction_hash, from_address
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(block_number, transaction_hash) DO NOTHING;
`,
		rec.Direction,
		codec.ScaledString(rec.Amount),
		rec.HasClaimed,
		codec.ScaledString(rec.ClaimableAmount),
		codec.ScaledString(rec.NoProbability),
		codec.ScaledString(rec.YesProbability),
		user,
		rec.Profile,
		rec.ContractAddress,
		int64(rec.BlockNumber),
		rec.TransactionHash,
		rec.FromAddress,
	)
	if err != nil {
		return false, classify(fmt.Errorf("upsert bet: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// StoredBet is a bet row as read back from the database.
type StoredBet struct {
	BlockNumber     uint64
	TransactionHash string
	Amount          string
	ClaimableAmount string
	NoProbability   string
	YesProbability  string
	UserAddress     sql.NullString
}

// ListBets returns every stored bet ordered by block.
func (s *Store) ListBets(ctx context.Context) ([]StoredBet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT block_number, transaction_hash, amount, claimable_amount, no_probability, yes_probability, user_address
FROM bet_placed ORDER BY block_number, id;
`)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []StoredBet
	for rows.Next() {
		var b StoredBet
		var block int64
		if err := rows.Scan(&block, &b.TransactionHash, &b.Amount, &b.ClaimableAmount, &b.NoProbability, &b.YesProbability, &b.UserAddress); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		b.BlockNumber = uint64(block)
		out = append(out, b)
	}
	return out, rows.Err()
}

// classify marks busy and locked databases as transient.
func classify(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return storage.Transient(err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.Transient(err)
	}
	return err
}
