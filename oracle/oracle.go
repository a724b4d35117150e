package oracle

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgeandnode/block-oracle/encoding"
)

// Oracle owns the in-memory state for the polling loop: the subgraph state
// tracker, the epoch tracker, and one JSON-RPC provider per chain. Run
// executes one polling iteration; the caller drives the loop and sleeps
// between iterations.
type Oracle struct {
	config        *Config
	logger        *zap.Logger
	metrics       *Metrics
	epochTracker  *EpochTracker
	protocolChain ProtocolChainClient
	indexedChains []indexedChainClient
	subgraphState *SubgraphStateTracker[*SubgraphData]
	emitter       *Emitter
	closers       []func()
}

type indexedChainClient struct {
	id     Caip2ChainID
	client IndexedChainClient
}

func NewOracle(config *Config, logger *zap.Logger, metrics *Metrics) (*Oracle, error) {
	protocolChain, err := NewJrpcProviderForChain(config.ProtocolChain.ID, config.ProtocolChain.JrpcURL, config.RetryMaxWaitTime, logger)
	if err != nil {
		return nil, err
	}
	closers := []func(){protocolChain.Close}

	indexedChains := make([]indexedChainClient, 0, len(config.IndexedChains))
	for _, chain := range config.IndexedChains {
		provider, err := NewJrpcProviderForChain(chain.ID, chain.JrpcURL, config.RetryMaxWaitTime, logger)
		if err != nil {
			for _, close := range closers {
				close()
			}
			return nil, err
		}
		closers = append(closers, provider.Close)
		indexedChains = append(indexedChains, indexedChainClient{id: chain.ID, client: provider})
	}

	subgraphAPI := NewSubgraphQuery(config.SubgraphURL, logger)
	o, err := newOracleWithClients(config, logger, metrics, protocolChain, indexedChains, subgraphAPI)
	if err != nil {
		for _, close := range closers {
			close()
		}
		return nil, err
	}
	o.closers = closers
	return o, nil
}

// newOracleWithClients wires the oracle from pre-built capability surfaces;
// tests plug mocks in here.
func newOracleWithClients(
	config *Config,
	logger *zap.Logger,
	metrics *Metrics,
	protocolChain ProtocolChainClient,
	indexedChains []indexedChainClient,
	subgraphAPI SubgraphAPI[*SubgraphData],
) (*Oracle, error) {
	epochTracker, err := NewEpochTracker(config.EpochDuration)
	if err != nil {
		return nil, err
	}
	return &Oracle{
		config:        config,
		logger:        logger,
		metrics:       metrics,
		epochTracker:  epochTracker,
		protocolChain: protocolChain,
		indexedChains: indexedChains,
		subgraphState: NewSubgraphStateTracker(subgraphAPI, logger),
		emitter:       NewEmitter(protocolChain, config.ContractAddress, config.OwnerAddress, config.OwnerPrivateKey, logger),
	}, nil
}

// Close releases the RPC clients and wipes the owner key.
func (o *Oracle) Close() {
	o.emitter.Close()
	for _, close := range o.closers {
		close()
	}
}

// Run executes one polling iteration: refresh the subgraph, gate on
// freshness and epoch transition, then produce and submit one payload.
func (o *Oracle) Run(ctx context.Context) error {
	o.metrics.CyclesTotal.Inc()

	o.subgraphState.Refresh(ctx)
	if !o.subgraphState.IsValid() {
		return &SubgraphError{Err: o.subgraphState.Error()}
	}
	subgraphData, _ := o.subgraphState.Data()
	if subgraphData.LatestEpochNumber != nil {
		o.epochTracker.Seed(*subgraphData.LatestEpochNumber)
	}

	head, err := o.protocolChain.GetLatestBlock(ctx)
	if err != nil {
		return &BadJrpcProtocolChainError{Err: err}
	}
	o.logger.Debug("got the latest block from the protocol chain",
		zap.Uint64("block", head.Number),
	)

	fresh, err := IsSubgraphFresh(
		ctx,
		subgraphData.LatestIndexedBlock,
		head.Number,
		o.protocolChain,
		o.config.OwnerAddress,
		o.config.ContractAddress,
		o.config.FreshnessThreshold,
		o.logger,
	)
	if err != nil {
		return &BadJrpcProtocolChainError{Err: err}
	}
	if !fresh {
		return ErrSubgraphNotFresh
	}

	if !o.epochTracker.IsNewEpoch(head.Number) {
		return nil
	}
	o.metrics.CurrentEpoch.Set(float64(o.epochTracker.Epoch(head.Number)))
	o.logger.Info("entering a new epoch", zap.Uint64("epoch", o.epochTracker.Epoch(head.Number)))

	latestBlocks := o.collectLatestBlocks(ctx)
	payload, err := o.producePayload(subgraphData, latestBlocks)
	if err != nil {
		return err
	}
	o.metrics.PayloadSizeBytes.Set(float64(len(payload)))

	txHash, err := o.emitter.SubmitOracleMessages(ctx, payload)
	if err != nil {
		return &CantSubmitTxError{Err: err}
	}
	o.metrics.SubmittedTxsTotal.Inc()
	o.logger.Info("submitted oracle messages",
		zap.String("transaction_hash", txHash.Hex()),
		zap.Int("payload_size", len(payload)),
	)
	return nil
}

// collectLatestBlocks fans out over the indexed chains concurrently. A
// chain whose RPC fails is logged and skipped for this cycle.
func (o *Oracle) collectLatestBlocks(ctx context.Context) map[Caip2ChainID]encoding.BlockPtr {
	o.logger.Info("collecting latest block information from all indexed chains")

	type result struct {
		ptr encoding.BlockPtr
		err error
	}
	results := make([]result, len(o.indexedChains))
	var group errgroup.Group
	for i, chain := range o.indexedChains {
		group.Go(func() error {
			ptr, err := chain.client.GetLatestBlock(ctx)
			results[i] = result{ptr: ptr, err: err}
			return nil
		})
	}
	_ = group.Wait()

	latest := make(map[Caip2ChainID]encoding.BlockPtr, len(o.indexedChains))
	for i, chain := range o.indexedChains {
		if err := results[i].err; err != nil {
			o.metrics.IndexedChainFailures.WithLabelValues(chain.id.String()).Inc()
			o.logger.Error("skipping chain for this cycle",
				zap.Error(&BadJrpcIndexedChainError{ChainID: chain.id, Err: err}),
			)
			continue
		}
		latest[chain.id] = results[i].ptr
	}
	return latest
}

// producePayload builds the cycle's message list and encodes it. The
// encoder's registry starts as the subgraph's canonical registry, minus any
// configured chain whose head could not be fetched this cycle; such a chain
// keeps its subgraph state untouched and is retried next epoch, and pending
// additions among them are deferred the same way.
func (o *Oracle) producePayload(subgraphData *SubgraphData, latestBlocks map[Caip2ChainID]encoding.BlockPtr) ([]byte, error) {
	configured := make(map[Caip2ChainID]struct{}, len(o.config.IndexedChains))
	for _, chain := range o.config.IndexedChains {
		configured[chain.ID] = struct{}{}
	}

	// Registry for this compression pass, in subgraph canonical order.
	registry := make([]SubgraphNetwork, 0, len(subgraphData.Networks))
	for _, network := range subgraphData.Networks {
		_, isConfigured := configured[network.ID]
		_, isFetched := latestBlocks[network.ID]
		if isConfigured && !isFetched {
			continue
		}
		registry = append(registry, network)
	}

	reachable := make([]Caip2ChainID, 0, len(o.config.IndexedChains))
	for _, id := range o.config.IndexedChainIDs() {
		if _, ok := latestBlocks[id]; ok {
			reachable = append(reachable, id)
		}
	}

	diff := CalculateNetworksDiff(reachable, registry)
	o.logger.Info("performed indexed chain diffing",
		zap.Int("created", len(diff.Insertions)),
		zap.Int("deleted", len(diff.Deletions)),
	)

	var messages []encoding.Message
	if msg := diff.ToMessage(); msg != nil {
		messages = append(messages, *msg)
	}

	// Post-mutation registry membership is exactly the reachable set.
	blockPtrs := make(map[string]encoding.BlockPtr, len(reachable))
	for _, id := range reachable {
		blockPtrs[id.String()] = latestBlocks[id]
	}
	messages = append(messages, encoding.SetBlockNumbersForNextEpoch{BlockPtrs: blockPtrs})

	networks := make([]encoding.NamedNetwork, 0, len(registry))
	for _, network := range registry {
		networks = append(networks, encoding.NamedNetwork{
			Name: network.ID.String(),
			Network: encoding.Network{
				BlockNumber: network.LatestBlockNumber,
				BlockDelta:  network.Delta,
			},
		})
	}
	encoder, err := encoding.NewEncoder(encoding.CurrentEncodingVersion, networks)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("compressing messages",
		zap.Int("messages_count", len(messages)),
		zap.Int("networks_count", len(networks)),
	)
	return encoder.Encode(messages)
}
