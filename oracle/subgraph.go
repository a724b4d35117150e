package oracle

import (
	"context"
	"fmt"
	"strconv"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

// SubgraphData is one consistent snapshot of the epoch subgraph: how far it
// has indexed the protocol chain, the networks it knows about in canonical
// registry order, and the most recent finalized epoch, if any.
type SubgraphData struct {
	LatestIndexedBlock uint64
	LatestEpochNumber  *uint64
	Networks           []SubgraphNetwork
}

// SubgraphNetwork is one registry entry as reported by the subgraph.
type SubgraphNetwork struct {
	ID                Caip2ChainID
	LatestBlockNumber uint64
	Delta             int64
}

// SubgraphAPI retrieves the latest state snapshot from a subgraph. Any
// transport or parse failure surfaces as a single opaque error.
type SubgraphAPI[S any] interface {
	GetSubgraphState(ctx context.Context) (S, error)
}

const subgraphStateQuery = `
query {
  _meta { block { number } }
  globalState(id: "0") {
    networks(first: 1000, orderBy: registrationIndex) {
      id
      latestValidBlockNumber
      delta
    }
  }
  epoches(first: 1, orderBy: epochNumber, orderDirection: desc) {
    epochNumber
  }
}`

type subgraphStateResponse struct {
	Meta struct {
		Block struct {
			Number uint64 `json:"number"`
		} `json:"block"`
	} `json:"_meta"`
	GlobalState *struct {
		Networks []struct {
			ID                     string `json:"id"`
			LatestValidBlockNumber string `json:"latestValidBlockNumber"`
			Delta                  string `json:"delta"`
		} `json:"networks"`
	} `json:"globalState"`
	Epoches []struct {
		EpochNumber string `json:"epochNumber"`
	} `json:"epoches"`
}

// SubgraphQuery implements SubgraphAPI over a GraphQL endpoint.
type SubgraphQuery struct {
	client *graphql.Client
	logger *zap.Logger
}

func NewSubgraphQuery(url string, logger *zap.Logger) *SubgraphQuery {
	return &SubgraphQuery{
		client: graphql.NewClient(url),
		logger: logger,
	}
}

func (q *SubgraphQuery) GetSubgraphState(ctx context.Context) (*SubgraphData, error) {
	var resp subgraphStateResponse
	req := graphql.NewRequest(subgraphStateQuery)
	if err := q.client.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query subgraph: %w", err)
	}

	data := &SubgraphData{LatestIndexedBlock: resp.Meta.Block.Number}
	if resp.GlobalState != nil {
		for _, network := range resp.GlobalState.Networks {
			id, err := NewCaip2ChainID(network.ID)
			if err != nil {
				return nil, fmt.Errorf("subgraph returned a malformed network id: %w", err)
			}
			number, err := strconv.ParseUint(network.LatestValidBlockNumber, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("network %q: parse latest block number: %w", network.ID, err)
			}
			delta, err := strconv.ParseInt(network.Delta, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("network %q: parse delta: %w", network.ID, err)
			}
			data.Networks = append(data.Networks, SubgraphNetwork{
				ID:                id,
				LatestBlockNumber: number,
				Delta:             delta,
			})
		}
	}
	if len(resp.Epoches) > 0 {
		epoch, err := strconv.ParseUint(resp.Epoches[0].EpochNumber, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse epoch number: %w", err)
		}
		data.LatestEpochNumber = &epoch
	}

	q.logger.Debug("retrieved subgraph state",
		zap.Uint64("latest_indexed_block", data.LatestIndexedBlock),
		zap.Int("networks", len(data.Networks)),
	)
	return data, nil
}
