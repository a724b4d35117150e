package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// TraceReader is the slice of the protocol-chain capability surface the
// freshness check depends on.
type TraceReader interface {
	GetTracesInBlockRange(ctx context.Context, fromBlock, toBlock uint64, fromAddress, toAddress common.Address) ([]Trace, error)
}

// IsSubgraphFresh decides whether the epoch subgraph has caught up with the
// protocol chain's head, i.e. has processed every relevant transaction from
// the owner to the DataEdge contract.
//
// A subgraph ahead of the head snapshot is fresh (the snapshot is stale). A
// gap of zero is fresh. A gap beyond the threshold is stale without asking
// the chain. Anything in between is fresh iff no owner-to-contract call
// traces exist in the gap.
func IsSubgraphFresh(
	ctx context.Context,
	subgraphLatestBlock uint64,
	currentBlock uint64,
	client TraceReader,
	ownerAddress common.Address,
	contractAddress common.Address,
	threshold uint64,
	logger *zap.Logger,
) (bool, error) {
	if subgraphLatestBlock >= currentBlock {
		return true, nil
	}
	distance := currentBlock - subgraphLatestBlock
	if distance > threshold {
		logger.Debug("subgraph is too far behind the protocol chain's head",
			zap.Uint64("subgraph_latest_block", subgraphLatestBlock),
			zap.Uint64("current_block", currentBlock),
			zap.Uint64("distance", distance),
		)
		return false, nil
	}

	traces, err := client.GetTracesInBlockRange(ctx, subgraphLatestBlock+1, currentBlock, ownerAddress, contractAddress)
	if err != nil {
		return false, err
	}
	if len(traces) > 0 {
		logger.Debug("subgraph is not fresh",
			zap.Uint64("subgraph_latest_block", subgraphLatestBlock),
			zap.Uint64("current_block", currentBlock),
			zap.Int("calls", len(traces)),
		)
		return false, nil
	}
	return true, nil
}
