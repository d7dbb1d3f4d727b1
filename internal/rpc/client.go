package rpc

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/blockfetch/internal/types"
	"github.com/goran-ethernal/blockfetch/pkg/config"
	pkgrpc "github.com/goran-ethernal/blockfetch/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient interface.
var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps the go-ethereum RPC client with retry, metrics and thin
// wrappers around common methods. It implements the pkgrpc.EthClient
// interface. Retry applies to whole calls only; batches are never partially
// resubmitted.
type Client struct {
	rpc   *gethrpc.Client
	retry *config.RetryConfig
}

// NewClient creates a new RPC client connected to the given endpoint.
// A nil retry config disables retries.
func NewClient(ctx context.Context, endpoint string, retry *config.RetryConfig) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpc:   rpcClient,
		retry: retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Call executes a single JSON-RPC call and decodes the result into result.
func (c *Client) Call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	RPCMethodInc(method)

	err := retryWithBackoff(ctx, c.retry, method, func() error {
		return c.rpc.CallContext(ctx, result, method, args...)
	})

	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		RPCMethodError(method, "call_failed")
	}

	return err
}

// BatchCall executes all elements in a single round trip.
// The i-th response is decoded into the i-th element's Result; per-element
// failures land on BatchElem.Error and are left to the caller. A returned
// error means the batch as a whole failed and no element was decoded.
func (c *Client) BatchCall(ctx context.Context, batch []gethrpc.BatchElem) error {
	const method = "batch"

	start := time.Now()
	RPCMethodInc(method)

	err := retryWithBackoff(ctx, c.retry, method, func() error {
		return c.rpc.BatchCallContext(ctx, batch)
	})

	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		RPCMethodError(method, "batch_failed")
	}

	return err
}

// ChainID returns the chain ID of the connected node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, &result, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// GasPrice returns the current gas price suggested by the node.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// BlockNumber returns the number of the most recent block.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// GetCode returns the contract code at the given address.
func (c *Client) GetCode(ctx context.Context, addr common.Address, tag types.BlockTag) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.Call(ctx, &result, "eth_getCode", addr, tag.String()); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransactionCount returns the account nonce at the given tag.
func (c *Client) GetTransactionCount(ctx context.Context, addr common.Address, tag types.BlockTag) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, &result, "eth_getTransactionCount", addr, tag.String()); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// CallContract executes a read-only contract call (eth_call).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, tag types.BlockTag) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.Call(ctx, &result, "eth_call", toCallArg(msg), tag.String()); err != nil {
		return nil, err
	}
	return result, nil
}

// SendRawTransaction submits a signed, RLP-encoded transaction and returns
// its hash.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var result common.Hash
	if err := c.Call(ctx, &result, "eth_sendRawTransaction", hexutil.Encode(rawTx)); err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// toCallArg converts ethereum.CallMsg to the format expected by eth_call.
func toCallArg(msg ethereum.CallMsg) any {
	arg := map[string]any{
		"from": msg.From,
		"to":   msg.To,
	}

	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	if msg.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
	}
	if msg.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
	}

	return arg
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return hexutil.EncodeUint64(blockNum)
}
