package fetcher

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InputError is returned when caller-supplied arguments are invalid.
// No RPC call is issued when it occurs.
type InputError struct {
	Op     string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

// ConsistencyError is returned when a log's block hash does not match the
// hash of the block it was merged into. It indicates either a non-atomic
// read at the node (the block changed between the block and log queries) or
// a response correlation failure. The whole fetch is rejected; callers must
// re-fetch fresh data rather than retry the same merge.
type ConsistencyError struct {
	BlockNumber uint64

	// WantHash is the hash of the block at the computed index.
	WantHash common.Hash

	// GotHash is the block hash carried by the offending log.
	GotHash common.Hash

	Details string
}

func (e *ConsistencyError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("block/log mismatch at block %d: %s", e.BlockNumber, e.Details)
	}
	return fmt.Sprintf("block/log mismatch at block %d: log has block hash %s, block has %s",
		e.BlockNumber, e.GotHash.Hex(), e.WantHash.Hex())
}

// NewConsistencyError creates a ConsistencyError for a hash mismatch.
func NewConsistencyError(blockNumber uint64, wantHash, gotHash common.Hash) error {
	return &ConsistencyError{
		BlockNumber: blockNumber,
		WantHash:    wantHash,
		GotHash:     gotHash,
	}
}
