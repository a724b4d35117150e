package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/edgeandnode/block-oracle/encoding"
)

// Trace is one entry returned by a trace_filter call, reduced to the fields
// the freshness check needs.
type Trace struct {
	BlockNumber     uint64      `json:"blockNumber"`
	TransactionHash common.Hash `json:"transactionHash"`
}

// IndexedChainClient is the capability surface the oracle needs from a
// network it merely observes.
type IndexedChainClient interface {
	GetLatestBlock(ctx context.Context) (encoding.BlockPtr, error)
}

// ProtocolChainClient is the capability surface the oracle needs from the
// chain carrying the DataEdge contract.
type ProtocolChainClient interface {
	IndexedChainClient
	GetTracesInBlockRange(ctx context.Context, fromBlock, toBlock uint64, fromAddress, toAddress common.Address) ([]Trace, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// JrpcProviderForChain is an HTTP JSON-RPC provider bound to one chain.
// Every outbound call is wrapped by an exponential backoff capped at the
// configured maximum wait, so the rest of the oracle sees each call as a
// single atomic success or failure.
type JrpcProviderForChain struct {
	chainID Caip2ChainID
	rpc     *rpc.Client
	eth     *ethclient.Client
	maxWait time.Duration
	logger  *zap.Logger
}

func NewJrpcProviderForChain(chainID Caip2ChainID, url string, maxWait time.Duration, logger *zap.Logger) (*JrpcProviderForChain, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial %q for chain %q: %w", url, chainID, err)
	}
	return &JrpcProviderForChain{
		chainID: chainID,
		rpc:     client,
		eth:     ethclient.NewClient(client),
		maxWait: maxWait,
		logger:  logger.With(zap.String("chain", chainID.String())),
	}, nil
}

// ID returns the chain this provider is bound to.
func (p *JrpcProviderForChain) ID() Caip2ChainID {
	return p.chainID
}

func (p *JrpcProviderForChain) Close() {
	p.rpc.Close()
}

func (p *JrpcProviderForChain) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = p.maxWait
	policy.MaxElapsedTime = p.maxWait
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		p.logger.Debug("retrying JSON-RPC call", zap.Error(err), zap.Duration("next_attempt_in", next))
	})
}

func (p *JrpcProviderForChain) GetLatestBlock(ctx context.Context) (encoding.BlockPtr, error) {
	var header *types.Header
	err := p.retry(ctx, func() error {
		var err error
		header, err = p.eth.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return encoding.BlockPtr{}, err
	}
	return encoding.BlockPtr{
		Number: header.Number.Uint64(),
		Hash:   [32]byte(header.Hash()),
	}, nil
}

func (p *JrpcProviderForChain) GetTracesInBlockRange(ctx context.Context, fromBlock, toBlock uint64, fromAddress, toAddress common.Address) ([]Trace, error) {
	filter := map[string]any{
		"fromBlock":   hexutil.EncodeUint64(fromBlock),
		"toBlock":     hexutil.EncodeUint64(toBlock),
		"fromAddress": []common.Address{fromAddress},
		"toAddress":   []common.Address{toAddress},
		"count":       1,
	}
	var traces []Trace
	err := p.retry(ctx, func() error {
		return p.rpc.CallContext(ctx, &traces, "trace_filter", filter)
	})
	return traces, err
}

func (p *JrpcProviderForChain) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := p.retry(ctx, func() error {
		var err error
		id, err = p.eth.ChainID(ctx)
		return err
	})
	return id, err
}

func (p *JrpcProviderForChain) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := p.retry(ctx, func() error {
		var err error
		nonce, err = p.eth.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

func (p *JrpcProviderForChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := p.retry(ctx, func() error {
		var err error
		price, err = p.eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (p *JrpcProviderForChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := p.retry(ctx, func() error {
		var err error
		gas, err = p.eth.EstimateGas(ctx, call)
		return err
	})
	return gas, err
}

func (p *JrpcProviderForChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return p.retry(ctx, func() error {
		return p.eth.SendTransaction(ctx, tx)
	})
}
