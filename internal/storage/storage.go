package storage

import (
	"context"
	"errors"
	"fmt"

	"betIndexer/internal/model"
)

// ErrTransient marks storage failures worth retrying, such as lost connections.
var ErrTransient = errors.New("transient storage error")

// CheckpointStore persists the last fully processed block number.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context) (uint64, error)
	SaveCheckpoint(ctx context.Context, block uint64) error
}

// EventStore persists decoded bets. UpsertBet reports false when a row with the
// same (block, transaction) key already exists.
type EventStore interface {
	UpsertBet(ctx context.Context, record model.BetRecord) (bool, error)
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err was marked as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
