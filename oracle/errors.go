package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/edgeandnode/block-oracle/encoding"
)

// ErrSubgraphNotFresh is surfaced when the subgraph has not caught up to the
// protocol chain's head. The loop retries after a short cooldown.
var ErrSubgraphNotFresh = errors.New("the subgraph hasn't indexed all relevant transactions yet")

// SubgraphError wraps a failed or uninitialized subgraph state.
type SubgraphError struct {
	Err error
}

func (e *SubgraphError) Error() string {
	return fmt.Sprintf("subgraph query failed: %s", e.Err)
}

func (e *SubgraphError) Unwrap() error { return e.Err }

// BadJrpcProtocolChainError wraps a protocol-chain RPC failure.
type BadJrpcProtocolChainError struct {
	Err error
}

func (e *BadJrpcProtocolChainError) Error() string {
	return fmt.Sprintf("JSON-RPC issues for the protocol chain: %s", e.Err)
}

func (e *BadJrpcProtocolChainError) Unwrap() error { return e.Err }

// BadJrpcIndexedChainError wraps a per-chain RPC failure. It is logged and
// the chain is skipped for the cycle; the loop never surfaces it.
type BadJrpcIndexedChainError struct {
	ChainID Caip2ChainID
	Err     error
}

func (e *BadJrpcIndexedChainError) Error() string {
	return fmt.Sprintf("failed to get latest block for the indexed chain %q: %s", e.ChainID, e.Err)
}

func (e *BadJrpcIndexedChainError) Unwrap() error { return e.Err }

// EpochTrackerError wraps a broken epoch arithmetic invariant.
type EpochTrackerError struct {
	Err error
}

func (e *EpochTrackerError) Error() string {
	return fmt.Sprintf("epoch tracker: %s", e.Err)
}

func (e *EpochTrackerError) Unwrap() error { return e.Err }

// CantSubmitTxError wraps a transaction submission failure.
type CantSubmitTxError struct {
	Err error
}

func (e *CantSubmitTxError) Error() string {
	return fmt.Sprintf("couldn't submit a transaction to the mempool of the JRPC provider: %s", e.Err)
}

func (e *CantSubmitTxError) Unwrap() error { return e.Err }

// ControlFlow is the classifier's verdict for an error that interrupted a
// polling iteration.
type ControlFlow struct {
	// Break stops the main loop; the process exits with a failure code.
	Break bool
	// Wait is an extra sleep before the next iteration.
	Wait time.Duration
}

// Classify maps an error to the loop instruction from the error-policy
// table. Compression and encoding failures indicate a bug or configuration
// drift and stop the process; everything else is retried across cycles.
func Classify(err error) ControlFlow {
	var compression *encoding.CompressionError
	switch {
	case errors.As(err, &compression):
		return ControlFlow{Break: true}
	case errors.Is(err, ErrSubgraphNotFresh):
		return ControlFlow{Wait: 30 * time.Second}
	default:
		return ControlFlow{}
	}
}
