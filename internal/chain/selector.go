package chain

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKey returns the Starknet selector of an event name: keccak256 of the
// name truncated to 250 bits.
func EventKey(name string) *felt.Felt {
	h := crypto.Keccak256([]byte(name))
	h[0] &= 0x03
	return new(felt.Felt).SetBytes(h)
}
