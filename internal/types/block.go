package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Log is an event record emitted during block execution, tagged with the
// number and hash of the block it belongs to. Logs are passed through from
// the node unmodified except for association with their owning Block.
type Log = gethtypes.Log

// Block is a ledger block enriched with the logs emitted in it.
// Numeric fields arrive as hex-encoded strings from the node and are
// normalized to integers during JSON decoding. The complete response object
// is retained in Raw so fields this package does not model are not lost.
type Block struct {
	Number     uint64         `json:"number"`
	Timestamp  uint64         `json:"timestamp"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Miner      common.Address `json:"miner"`
	GasLimit   uint64         `json:"gasLimit"`
	GasUsed    uint64         `json:"gasUsed"`
	BaseFee    *big.Int       `json:"baseFeePerGas,omitempty"`

	// Transactions holds the full transaction objects exactly as returned
	// by the node.
	Transactions []json.RawMessage `json:"transactions"`

	// Logs is populated during the fetch-and-merge step, in arrival order.
	Logs []Log `json:"logs"`

	// Raw is the unmodified block object as returned by the node.
	Raw json.RawMessage `json:"-"`
}

// rpcBlock mirrors the eth_getBlockByNumber response shape.
// Number and Timestamp are pointers so an absent field is a decode error
// rather than a silent zero.
type rpcBlock struct {
	Number       *hexutil.Uint64   `json:"number"`
	Timestamp    *hexutil.Uint64   `json:"timestamp"`
	Hash         common.Hash       `json:"hash"`
	ParentHash   common.Hash       `json:"parentHash"`
	Miner        common.Address    `json:"miner"`
	GasLimit     hexutil.Uint64    `json:"gasLimit"`
	GasUsed      hexutil.Uint64    `json:"gasUsed"`
	BaseFee      *hexutil.Big      `json:"baseFeePerGas"`
	Transactions []json.RawMessage `json:"transactions"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw rpcBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Number == nil {
		return fmt.Errorf("block is missing the number field")
	}
	if raw.Timestamp == nil {
		return fmt.Errorf("block %d is missing the timestamp field", uint64(*raw.Number))
	}

	b.Number = uint64(*raw.Number)
	b.Timestamp = uint64(*raw.Timestamp)
	b.Hash = raw.Hash
	b.ParentHash = raw.ParentHash
	b.Miner = raw.Miner
	b.GasLimit = uint64(raw.GasLimit)
	b.GasUsed = uint64(raw.GasUsed)
	if raw.BaseFee != nil {
		b.BaseFee = raw.BaseFee.ToInt()
	}
	b.Transactions = raw.Transactions
	b.Raw = append(json.RawMessage(nil), data...)

	return nil
}
