package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/blockfetch/internal/logger"
	"github.com/goran-ethernal/blockfetch/internal/types"
	pkgrpc "github.com/goran-ethernal/blockfetch/pkg/rpc"
)

// Signer signs assembled transactions. Implementations own the key
// material; this package never sees it.
type Signer interface {
	SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)
}

// TxRequest describes a transaction to assemble. Nonce and GasPrice may be
// left nil to have the node fill them in. Setting GasFeeCap and GasTipCap
// produces a dynamic fee transaction instead of a legacy one.
type TxRequest struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Nonce    *uint64

	// GasFeeCap and GasTipCap select EIP-1559 pricing. Both must be set
	// together; GasPrice is ignored when they are.
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// TxBuilder assembles transactions, delegates signing to an external Signer
// and submits the signed payload via eth_sendRawTransaction.
type TxBuilder struct {
	client pkgrpc.EthClient
	signer Signer
	log    *logger.Logger
}

// New creates a new TxBuilder.
func New(client pkgrpc.EthClient, signer Signer, log *logger.Logger) *TxBuilder {
	return &TxBuilder{
		client: client,
		signer: signer,
		log:    log,
	}
}

// Build assembles an unsigned transaction from the request, asking the node
// for the nonce and gas price when the caller left them out. A request with
// fee caps set builds a dynamic fee transaction, otherwise a legacy one.
func (b *TxBuilder) Build(ctx context.Context, req TxRequest) (*gethtypes.Transaction, error) {
	nonce, err := b.resolveNonce(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve nonce: %w", err)
	}

	if req.GasFeeCap != nil || req.GasTipCap != nil {
		if req.GasFeeCap == nil || req.GasTipCap == nil {
			return nil, errors.New("dynamic fee transactions require both GasFeeCap and GasTipCap")
		}

		chainID, err := b.client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chain ID: %w", err)
		}

		return gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			To:        req.To,
			Value:     req.Value,
			Gas:       req.Gas,
			GasFeeCap: req.GasFeeCap,
			GasTipCap: req.GasTipCap,
			Data:      req.Data,
		}), nil
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = b.client.GasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch gas price: %w", err)
		}
	}

	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       req.To,
		Value:    req.Value,
		Gas:      req.Gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	}), nil
}

// Send assembles, signs and submits a transaction, returning its hash.
func (b *TxBuilder) Send(ctx context.Context, req TxRequest) (common.Hash, error) {
	if b.signer == nil {
		return common.Hash{}, errors.New("no signer configured")
	}

	tx, err := b.Build(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}

	chainID, err := b.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch chain ID: %w", err)
	}

	signed, err := b.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	hash, err := b.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return common.Hash{}, err
	}

	b.log.Infow("transaction submitted",
		"hash", hash.Hex(),
		"nonce", signed.Nonce(),
		"to", req.To,
	)

	return hash, nil
}

func (b *TxBuilder) resolveNonce(ctx context.Context, req TxRequest) (uint64, error) {
	if req.Nonce != nil {
		return *req.Nonce, nil
	}
	return b.client.GetTransactionCount(ctx, req.From, types.TagPending)
}
