package indexer

import "fmt"

// BlockRange is an inclusive span of blocks fetched in one getEvents query.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts [from, to] into ascending ranges of at most size blocks.
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("range size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is below from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
