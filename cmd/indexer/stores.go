package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"

	"betIndexer/internal/allowlist"
	"betIndexer/internal/config"
	"betIndexer/internal/storage"
	"betIndexer/internal/storage/postgres"
	"betIndexer/internal/storage/sqlite"
)

type storeSet struct {
	Checkpoints storage.CheckpointStore
	Events      storage.EventStore
	ping        func(ctx context.Context) error
	close       func()
}

func (s *storeSet) Ping(ctx context.Context) error {
	if s.ping == nil {
		return errors.New("store not initialized")
	}
	return s.ping(ctx)
}

func (s *storeSet) Close() {
	if s.close != nil {
		s.close()
	}
}

// seeder is implemented by database stores that keep the checkpoint in app_state.
type seeder interface {
	storage.CheckpointStore
	EnsureCheckpoint(ctx context.Context, seed uint64) error
}

// openStores opens the configured event store and checkpoint backend. The
// Postgres schema is migrated first; SQLite creates its tables on open.
func openStores(ctx context.Context, cfg config.Config) (*storeSet, error) {
	var (
		set = &storeSet{}
		db  seeder
	)

	switch cfg.DBDriver {
	case "postgres":
		if err := postgres.Migrate(cfg.PgDSN); err != nil {
			return nil, err
		}
		store, err := postgres.NewStore(ctx, cfg.PgDSN, postgres.Options{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		set.Events, set.ping, set.close = store, store.Ping, store.Close
		db = store
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		set.Events, set.ping = store, store.Ping
		set.close = func() { _ = store.Close() }
		db = store
	default:
		return nil, fmt.Errorf("invalid db-driver: %s", cfg.DBDriver)
	}

	switch cfg.CheckpointBackend {
	case "file":
		cp, err := storage.NewFileCheckpointStore(cfg.CheckpointFile, cfg.StartBlock)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.Checkpoints = cp
	default:
		if err := db.EnsureCheckpoint(ctx, cfg.StartBlock); err != nil {
			set.Close()
			return nil, fmt.Errorf("seed checkpoint: %w", err)
		}
		set.Checkpoints = db
	}
	return set, nil
}

func loadContracts(ctx context.Context, cfg config.Config) ([]*felt.Felt, error) {
	var src allowlist.Source
	switch cfg.Allowlist {
	case "file":
		src = allowlist.File{Path: cfg.AllowlistFile}
	case "redis":
		client, err := allowlist.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		src = allowlist.NewRedis(client, cfg.RedisKey)
	default:
		src = allowlist.Static(cfg.Contracts)
	}

	contracts, err := allowlist.LoadActive(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load allowlist: %w", err)
	}
	return contracts, nil
}
