package oracle

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/edgeandnode/block-oracle/encoding"
)

const contractFunctionName = "crossChainEpochOracle"

// Emitter builds, signs, and broadcasts the oracle transaction carrying an
// encoded payload to the DataEdge contract. It does not wait for
// confirmations: acceptance into the mempool ends its responsibility.
type Emitter struct {
	client          ProtocolChainClient
	contractAddress common.Address
	ownerAddress    common.Address
	ownerKey        *ecdsa.PrivateKey
	logger          *zap.Logger
}

func NewEmitter(client ProtocolChainClient, contractAddress, ownerAddress common.Address, ownerKey *ecdsa.PrivateKey, logger *zap.Logger) *Emitter {
	return &Emitter{
		client:          client,
		contractAddress: contractAddress,
		ownerAddress:    ownerAddress,
		ownerKey:        ownerKey,
		logger:          logger,
	}
}

// SubmitOracleMessages sends a signed crossChainEpochOracle(bytes) call with
// the payload as the sole argument and returns the transaction hash.
func (e *Emitter) SubmitOracleMessages(ctx context.Context, payload []byte) (common.Hash, error) {
	data, err := packCrossChainEpochOracleCall(payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s call: %w", contractFunctionName, err)
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := e.client.PendingNonce(ctx, e.ownerAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get pending nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.ownerAddress,
		To:   &e.contractAddress,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.contractAddress,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.ownerKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	e.logger.Info("sent transaction", zap.String("transaction_hash", signed.Hash().Hex()))
	return signed.Hash(), nil
}

// Close wipes the owner key. Best effort: the bits live in a big.Int, so
// zeroing its limbs is what the platform permits.
func (e *Emitter) Close() {
	zeroizeKey(e.ownerKey)
}

func zeroizeKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	limbs := key.D.Bits()
	for i := range limbs {
		limbs[i] = 0
	}
}

func packCrossChainEpochOracleCall(payload []byte) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytesType}}
	packed, err := args.Pack(payload)
	if err != nil {
		return nil, err
	}
	selector := encoding.Keccak256([]byte(contractFunctionName + "(bytes)"))
	return append(selector[:4:4], packed...), nil
}
