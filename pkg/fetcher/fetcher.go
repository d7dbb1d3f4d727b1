package fetcher

import (
	"context"

	"github.com/goran-ethernal/blockfetch/internal/types"
)

// BlockFetcher retrieves blocks together with the logs emitted in them,
// using the minimum number of network round trips.
// This abstraction allows for easier testing and alternative implementations.
type BlockFetcher interface {
	// GetBlocks fetches the half-open range [fromBlock, toBlock) in a single
	// batch: one eth_getBlockByNumber per block plus one eth_getLogs over
	// the whole range. Each log is merged into its owning block by block
	// number and verified against the block's hash. Any failure rejects the
	// whole call; a partially merged result is never returned.
	GetBlocks(ctx context.Context, fromBlock, toBlock uint64) ([]types.Block, error)

	// GetBlocksFromArray fetches an explicit list of block numbers in a
	// single batch of strict block/logs pairs. Each log query is scoped to
	// exactly one block by the request itself, so no hash consistency check
	// is performed. This is a weaker, less validated mode than GetBlocks.
	GetBlocksFromArray(ctx context.Context, blockNumbers []uint64) ([]types.Block, error)
}
