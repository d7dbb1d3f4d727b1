package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/blockfetch/internal/types"
)

// Transport is the JSON-RPC transport consumed by the block fetcher.
// This abstraction allows for easier testing and alternative implementations.
type Transport interface {
	// Call executes a single JSON-RPC call and decodes the result into result.
	Call(ctx context.Context, result any, method string, args ...any) error

	// BatchCall executes all elements in a single network round trip.
	//
	// Ordered correlation is a contract of this interface: the i-th response
	// is decoded into the i-th element's Result. Callers build index-based
	// merges on top of this guarantee, so an implementation that reorders
	// responses is broken, not merely slow. Per-element failures are
	// reported on BatchElem.Error; a returned error means the whole batch
	// failed to execute.
	BatchCall(ctx context.Context, batch []gethrpc.BatchElem) error

	// Close closes the underlying connection.
	Close()
}

// EthClient is the full client surface: the transport plus thin wrappers
// around common Ethereum JSON-RPC methods.
type EthClient interface {
	Transport

	// ChainID returns the chain ID of the connected node.
	ChainID(ctx context.Context) (*big.Int, error)

	// GasPrice returns the current gas price suggested by the node.
	GasPrice(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the number of the most recent block.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetCode returns the contract code at the given address.
	GetCode(ctx context.Context, addr common.Address, tag types.BlockTag) ([]byte, error)

	// GetTransactionCount returns the account nonce at the given tag.
	GetTransactionCount(ctx context.Context, addr common.Address, tag types.BlockTag) (uint64, error)

	// CallContract executes a read-only contract call (eth_call).
	CallContract(ctx context.Context, msg ethereum.CallMsg, tag types.BlockTag) ([]byte, error)

	// SendRawTransaction submits a signed, RLP-encoded transaction and
	// returns its hash.
	SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error)
}
