package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/blockfetch/internal/logger"
	"github.com/goran-ethernal/blockfetch/internal/types"
	pkgfetcher "github.com/goran-ethernal/blockfetch/pkg/fetcher"
	"github.com/goran-ethernal/blockfetch/pkg/rpc"
)

// Compile-time check to ensure BlockFetcher implements pkgfetcher.BlockFetcher interface.
var _ pkgfetcher.BlockFetcher = (*BlockFetcher)(nil)

const (
	opGetBlocks          = "get_blocks"
	opGetBlocksFromArray = "get_blocks_from_array"
)

// BlockFetcher retrieves blocks and their logs in single batched round trips
// and merges each log into its owning block. It holds no state between
// calls: every invocation builds its own batch and its own result slices, so
// concurrent use needs no locking. Retries, timeouts and cancellation belong
// to the transport; a failed fetch is terminal for that invocation.
type BlockFetcher struct {
	transport rpc.Transport
	log       *logger.Logger
}

// New creates a new BlockFetcher using the given transport.
func New(transport rpc.Transport, log *logger.Logger) *BlockFetcher {
	return &BlockFetcher{
		transport: transport,
		log:       log,
	}
}

// logFilter is the eth_getLogs argument for an inclusive block range.
type logFilter struct {
	FromBlock string `json:"fromBlock"`
	ToBlock   string `json:"toBlock"`
}

// GetBlocks fetches the half-open range [fromBlock, toBlock) in one batch:
// one eth_getBlockByNumber request per block (with full transaction
// objects), followed by a single eth_getLogs request over the whole range.
// Each returned log is appended to blocks[log.BlockNumber-fromBlock] in
// arrival order after verifying that its block hash matches the block at
// that index. Any mismatch rejects the entire call; no partial result is
// ever returned.
func (f *BlockFetcher) GetBlocks(ctx context.Context, fromBlock, toBlock uint64) ([]types.Block, error) {
	if fromBlock > toBlock {
		return nil, &InputError{
			Op:     opGetBlocks,
			Reason: fmt.Sprintf("fromBlock %d is greater than toBlock %d", fromBlock, toBlock),
		}
	}

	count := toBlock - fromBlock
	if count == 0 {
		return []types.Block{}, nil
	}

	start := time.Now()

	blocks := make([]types.Block, count)
	var logs []types.Log

	batch := make([]gethrpc.BatchElem, 0, count+1)
	for i := uint64(0); i < count; i++ {
		batch = append(batch, gethrpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []any{toBlockNumArg(fromBlock + i), true}, // true = include full transaction objects
			Result: &blocks[i],
		})
	}

	// One logs request covering the whole range. eth_getLogs takes an
	// inclusive interval, hence toBlock-1.
	batch = append(batch, gethrpc.BatchElem{
		Method: "eth_getLogs",
		Args: []any{logFilter{
			FromBlock: toBlockNumArg(fromBlock),
			ToBlock:   toBlockNumArg(toBlock - 1),
		}},
		Result: &logs,
	})

	if err := f.transport.BatchCall(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}
	if err := firstBatchError(batch); err != nil {
		return nil, err
	}

	// Merge each log into its owning block by block-number index.
	for i := range logs {
		lg := logs[i]

		if lg.BlockNumber < fromBlock || lg.BlockNumber >= toBlock {
			consistencyFailureInc()
			return nil, &ConsistencyError{
				BlockNumber: lg.BlockNumber,
				Details:     fmt.Sprintf("log belongs to a block outside the requested range [%d, %d)", fromBlock, toBlock),
			}
		}

		index := lg.BlockNumber - fromBlock
		if lg.BlockHash != blocks[index].Hash {
			consistencyFailureInc()
			return nil, NewConsistencyError(lg.BlockNumber, blocks[index].Hash, lg.BlockHash)
		}

		blocks[index].Logs = append(blocks[index].Logs, lg)
	}

	blocksFetchedInc(opGetBlocks, len(blocks))
	logsMergedInc(opGetBlocks, len(logs))
	fetchDurationLog(opGetBlocks, time.Since(start))

	f.log.Debugw("fetched block range",
		"from_block", fromBlock,
		"to_block", toBlock,
		"blocks", len(blocks),
		"logs", len(logs),
	)

	return blocks, nil
}

// GetBlocksFromArray fetches an explicit list of block numbers in one batch
// of strict pairs: element 2k is the block request for blockNumbers[k],
// element 2k+1 its logs request scoped to exactly that block. Each block
// receives its paired log slice wholesale.
//
// Unlike GetBlocks, no hash consistency check is performed: every log query
// is pinned to a single block by the request itself. This is an
// intentionally weaker, less validated mode.
func (f *BlockFetcher) GetBlocksFromArray(ctx context.Context, blockNumbers []uint64) ([]types.Block, error) {
	if len(blockNumbers) == 0 {
		return []types.Block{}, nil
	}

	start := time.Now()

	blocks := make([]types.Block, len(blockNumbers))
	logSets := make([][]types.Log, len(blockNumbers))

	batch := make([]gethrpc.BatchElem, 0, 2*len(blockNumbers))
	for i, blockNum := range blockNumbers {
		tag := toBlockNumArg(blockNum)
		batch = append(batch,
			gethrpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{tag, true},
				Result: &blocks[i],
			},
			gethrpc.BatchElem{
				Method: "eth_getLogs",
				Args:   []any{logFilter{FromBlock: tag, ToBlock: tag}},
				Result: &logSets[i],
			},
		)
	}

	if err := f.transport.BatchCall(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}
	if err := firstBatchError(batch); err != nil {
		return nil, err
	}

	totalLogs := 0
	for i := range blocks {
		blocks[i].Logs = logSets[i]
		totalLogs += len(logSets[i])
	}

	blocksFetchedInc(opGetBlocksFromArray, len(blocks))
	logsMergedInc(opGetBlocksFromArray, totalLogs)
	fetchDurationLog(opGetBlocksFromArray, time.Since(start))

	f.log.Debugw("fetched block list",
		"blocks", len(blocks),
		"logs", totalLogs,
	)

	return blocks, nil
}

// firstBatchError returns the first per-element error in the batch, wrapped
// with the request it belongs to.
func firstBatchError(batch []gethrpc.BatchElem) error {
	for i := range batch {
		if batch[i].Error != nil {
			return fmt.Errorf("%s request at batch index %d failed: %w", batch[i].Method, i, batch[i].Error)
		}
	}
	return nil
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return hexutil.EncodeUint64(blockNum)
}
