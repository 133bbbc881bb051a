package indexer

import (
	"fmt"
	"strings"
)

// CheckpointPolicy decides how far the checkpoint advances when a fetch failed.
type CheckpointPolicy string

const (
	// PolicyStrict stops the checkpoint before the first range with a failed fetch.
	PolicyStrict CheckpointPolicy = "strict"
	// PolicyLenient always advances to the chain height, dropping failed ranges.
	PolicyLenient CheckpointPolicy = "lenient"
)

// ParseCheckpointPolicy converts a config value into a CheckpointPolicy. Empty means strict.
func ParseCheckpointPolicy(input string) (CheckpointPolicy, error) {
	switch CheckpointPolicy(strings.ToLower(strings.TrimSpace(input))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("invalid checkpoint policy: %s", input)
	}
}
