package model

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
)

// RawEvent is one emitted event as returned by the node, before decoding.
type RawEvent struct {
	BlockNumber     uint64
	TransactionHash *felt.Felt
	FromAddress     *felt.Felt
	Data            []*felt.Felt
}

// BetKey formats the (block, tx hash) identity used for deduplication.
func BetKey(blockNumber uint64, txHash string) string {
	return fmt.Sprintf("%d:%s", blockNumber, txHash)
}
