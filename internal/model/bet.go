package model

import (
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/shopspring/decimal"
)

// Odds is the no/yes probability pair carried by a bet.
type Odds struct {
	NoProbability  *big.Int
	YesProbability *big.Int
}

// BetEvent is a decoded BetPlace payload.
type BetEvent struct {
	Direction       bool
	Amount          *big.Int
	HasClaimed      bool
	ClaimableAmount *big.Int
	Odds            Odds
	UserAddress     *felt.Felt
}

// BetRecord is the storage form of a BetEvent. Numeric fields are already scaled
// by the decoding profile.
type BetRecord struct {
	BlockNumber     uint64
	TransactionHash string
	FromAddress     string
	ContractAddress string
	Profile         string

	Direction       bool
	Amount          decimal.Decimal
	HasClaimed      bool
	ClaimableAmount decimal.Decimal
	NoProbability   decimal.Decimal
	YesProbability  decimal.Decimal
	UserAddress     *string
}

// Key returns the identity of the record in the event store.
func (r BetRecord) Key() string {
	return BetKey(r.BlockNumber, r.TransactionHash)
}
