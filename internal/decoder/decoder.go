// Package decoder maps BetPlace event payloads to typed records.
package decoder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
)

// ErrPayloadTooShort is returned when a payload has fewer slots than the profile reads.
var ErrPayloadTooShort = errors.New("payload too short")

// Config selects a profile and optionally overrides its scaling. Negative
// decimals keep the profile default.
type Config struct {
	Profile        string
	AmountDecimals int32
	OddsDecimals   int32
}

// Decoder decodes payloads with a single profile.
type Decoder struct {
	profile Profile
}

// New builds a Decoder from a built-in profile.
func New(cfg Config) (*Decoder, error) {
	p, err := Lookup(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if cfg.AmountDecimals >= 0 {
		p.AmountDecimals = cfg.AmountDecimals
	}
	if cfg.OddsDecimals >= 0 {
		p.OddsDecimals = cfg.OddsDecimals
	}
	return NewWithProfile(p)
}

// NewWithProfile builds a Decoder from a custom offset table.
func NewWithProfile(p Profile) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{profile: p}, nil
}

// Profile returns the active profile.
func (d *Decoder) Profile() Profile {
	return d.profile
}

// Decode reads the profile's slots from data.
func (d *Decoder) Decode(data []*felt.Felt) (*model.BetEvent, error) {
	p := d.profile
	if len(data) < p.MinLength() {
		return nil, fmt.Errorf("%w: profile %s needs %d slots, got %d", ErrPayloadTooShort, p.Name, p.MinLength(), len(data))
	}

	event := &model.BetEvent{
		Direction:       codec.Bool(data[p.Direction]),
		Amount:          readSlot(data, p.Amount),
		HasClaimed:      codec.Bool(data[p.HasClaimed]),
		ClaimableAmount: readSlot(data, p.ClaimableAmount),
		Odds: model.Odds{
			NoProbability:  readSlot(data, p.NoOdds),
			YesProbability: readSlot(data, p.YesOdds),
		},
	}
	if p.User != noSlot && data[p.User] != nil {
		user := *data[p.User]
		event.UserAddress = &user
	}
	return event, nil
}

func readSlot(data []*felt.Felt, s Slot) *big.Int {
	if !s.Wide() {
		return codec.FeltToBig(data[s.Low])
	}
	return codec.WideFromHalves(data[s.High], data[s.Low])
}
