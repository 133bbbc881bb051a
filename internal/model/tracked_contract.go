package model

import "github.com/NethermindEth/juno/core/felt"

// TrackedContract is an allowlisted contract address.
type TrackedContract struct {
	Address *felt.Felt
	Active  bool
}
