package txbuilder

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/blockfetch/internal/logger"
	"github.com/goran-ethernal/blockfetch/internal/types"
)

// mockClient implements the pkgrpc.EthClient interface for testing.
type mockClient struct {
	chainID  *big.Int
	gasPrice *big.Int
	nonce    uint64

	gasPriceCalls int
	nonceCalls    int
	sentRaw       []byte
}

func (m *mockClient) Call(ctx context.Context, result any, method string, args ...any) error {
	return errors.New("unexpected call")
}

func (m *mockClient) BatchCall(ctx context.Context, batch []gethrpc.BatchElem) error {
	return errors.New("unexpected batch call")
}

func (m *mockClient) Close() {}

func (m *mockClient) ChainID(ctx context.Context) (*big.Int, error) {
	return m.chainID, nil
}

func (m *mockClient) GasPrice(ctx context.Context) (*big.Int, error) {
	m.gasPriceCalls++
	return m.gasPrice, nil
}

func (m *mockClient) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (m *mockClient) GetCode(ctx context.Context, addr common.Address, tag types.BlockTag) ([]byte, error) {
	return nil, nil
}

func (m *mockClient) GetTransactionCount(ctx context.Context, addr common.Address, tag types.BlockTag) (uint64, error) {
	m.nonceCalls++
	return m.nonce, nil
}

func (m *mockClient) CallContract(ctx context.Context, msg ethereum.CallMsg, tag types.BlockTag) ([]byte, error) {
	return nil, nil
}

func (m *mockClient) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	m.sentRaw = append([]byte(nil), rawTx...)

	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// keySigner signs with a local private key, standing in for the external
// signing collaborator.
type keySigner struct {
	key *ecdsa.PrivateKey
}

func (s *keySigner) SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), s.key)
}

type failingSigner struct{}

func (s *failingSigner) SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return nil, errors.New("signer unavailable")
}

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestBuild_FillsNonceAndGasPrice(t *testing.T) {
	_, from := newTestKey(t)
	to := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")

	client := &mockClient{
		chainID:  big.NewInt(1),
		gasPrice: big.NewInt(2_000_000_000),
		nonce:    7,
	}

	b := New(client, nil, logger.NewNopLogger())
	tx, err := b.Build(context.Background(), TxRequest{
		From:  from,
		To:    &to,
		Value: big.NewInt(1000),
		Gas:   21000,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, big.NewInt(2_000_000_000), tx.GasPrice())
	require.Equal(t, 1, client.nonceCalls)
	require.Equal(t, 1, client.gasPriceCalls)
}

func TestBuild_RespectsExplicitNonceAndGasPrice(t *testing.T) {
	_, from := newTestKey(t)

	client := &mockClient{
		chainID:  big.NewInt(1),
		gasPrice: big.NewInt(2_000_000_000),
		nonce:    7,
	}

	nonce := uint64(42)
	b := New(client, nil, logger.NewNopLogger())
	tx, err := b.Build(context.Background(), TxRequest{
		From:     from,
		Gas:      21000,
		Nonce:    &nonce,
		GasPrice: big.NewInt(5),
	})
	require.NoError(t, err)

	require.Equal(t, uint64(42), tx.Nonce())
	require.Equal(t, big.NewInt(5), tx.GasPrice())
	require.Zero(t, client.nonceCalls, "node must not be asked when nonce is explicit")
	require.Zero(t, client.gasPriceCalls, "node must not be asked when gas price is explicit")
}

func TestBuild_DynamicFee(t *testing.T) {
	_, from := newTestKey(t)
	to := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")

	client := &mockClient{
		chainID:  big.NewInt(1),
		gasPrice: big.NewInt(2_000_000_000),
		nonce:    7,
	}

	b := New(client, nil, logger.NewNopLogger())
	tx, err := b.Build(context.Background(), TxRequest{
		From:      from,
		To:        &to,
		Gas:       21000,
		GasFeeCap: big.NewInt(3_000_000_000),
		GasTipCap: big.NewInt(100_000_000),
	})
	require.NoError(t, err)

	require.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	require.Equal(t, big.NewInt(3_000_000_000), tx.GasFeeCap())
	require.Equal(t, big.NewInt(100_000_000), tx.GasTipCap())
	require.Zero(t, client.gasPriceCalls, "gas price must not be fetched for dynamic fee transactions")
}

func TestBuild_DynamicFeeMissingCap(t *testing.T) {
	_, from := newTestKey(t)

	client := &mockClient{chainID: big.NewInt(1), gasPrice: big.NewInt(1)}

	b := New(client, nil, logger.NewNopLogger())
	_, err := b.Build(context.Background(), TxRequest{
		From:      from,
		Gas:       21000,
		GasFeeCap: big.NewInt(3_000_000_000),
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "GasTipCap")
}

func TestSend_SignsAndSubmits(t *testing.T) {
	key, from := newTestKey(t)
	to := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")

	client := &mockClient{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(1_000_000_000),
		nonce:    3,
	}

	b := New(client, &keySigner{key: key}, logger.NewNopLogger())
	hash, err := b.Send(context.Background(), TxRequest{
		From:  from,
		To:    &to,
		Value: big.NewInt(500),
		Gas:   21000,
	})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.NotEmpty(t, client.sentRaw)

	// The submitted payload decodes back to a transaction signed by from
	var tx gethtypes.Transaction
	require.NoError(t, tx.UnmarshalBinary(client.sentRaw))
	require.Equal(t, hash, tx.Hash())

	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(client.chainID), &tx)
	require.NoError(t, err)
	require.Equal(t, from, sender)
}

func TestSend_SignerError(t *testing.T) {
	_, from := newTestKey(t)

	client := &mockClient{
		chainID:  big.NewInt(1),
		gasPrice: big.NewInt(1),
		nonce:    0,
	}

	b := New(client, &failingSigner{}, logger.NewNopLogger())
	_, err := b.Send(context.Background(), TxRequest{From: from, Gas: 21000})
	require.Error(t, err)
	require.ErrorContains(t, err, "signer unavailable")
	require.Empty(t, client.sentRaw, "nothing must be submitted when signing fails")
}

func TestSend_NoSigner(t *testing.T) {
	client := &mockClient{chainID: big.NewInt(1), gasPrice: big.NewInt(1)}

	b := New(client, nil, logger.NewNopLogger())
	_, err := b.Send(context.Background(), TxRequest{Gas: 21000})
	require.Error(t, err)
	require.ErrorContains(t, err, "no signer configured")
}
