// Package allowlist loads the set of contracts whose events are indexed.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
)

// ErrEmpty is returned when no active contract remains after loading.
var ErrEmpty = errors.New("allowlist has no active contracts")

// Source yields tracked contracts. It is read once at startup.
type Source interface {
	Load(ctx context.Context) ([]model.TrackedContract, error)
}

// Static is an allowlist given inline, every entry active.
type Static []string

func (s Static) Load(_ context.Context) ([]model.TrackedContract, error) {
	out := make([]model.TrackedContract, 0, len(s))
	for _, raw := range s {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := codec.ParseFelt(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid contract address %q: %w", raw, err)
		}
		out = append(out, model.TrackedContract{Address: addr, Active: true})
	}
	return out, nil
}

// LoadActive loads src and returns the distinct active addresses in load order.
func LoadActive(ctx context.Context, src Source) ([]*felt.Felt, error) {
	contracts, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[felt.Felt]struct{}, len(contracts))
	active := make([]*felt.Felt, 0, len(contracts))
	for _, c := range contracts {
		if !c.Active || c.Address == nil {
			continue
		}
		if _, ok := seen[*c.Address]; ok {
			continue
		}
		seen[*c.Address] = struct{}{}
		active = append(active, c.Address)
	}
	if len(active) == 0 {
		return nil, ErrEmpty
	}
	return active, nil
}
