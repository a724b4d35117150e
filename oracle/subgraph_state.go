package oracle

import (
	"context"

	"go.uber.org/zap"
)

type trackerState int

const (
	stateUninitialized trackerState = iota
	stateValid
	stateFailed
)

// SubgraphStateTracker owns the subgraph snapshot lifecycle. It starts
// Uninitialized, becomes Valid on the first successful refresh, and drops to
// Failed on later failures while preserving the last valid snapshot.
//
// Snapshots are shared, never mutated in place: a refresh installs a fresh
// value, so callers may hold a snapshot obtained from Data across later
// refreshes. The tracker itself is owned exclusively by the loop.
type SubgraphStateTracker[S any] struct {
	api    SubgraphAPI[S]
	logger *zap.Logger

	state trackerState
	data  S
	has   bool
	err   error
}

func NewSubgraphStateTracker[S any](api SubgraphAPI[S], logger *zap.Logger) *SubgraphStateTracker[S] {
	return &SubgraphStateTracker[S]{api: api, logger: logger}
}

// Refresh fetches a new snapshot and performs exactly one state transition.
func (t *SubgraphStateTracker[S]) Refresh(ctx context.Context) {
	t.logger.Debug("fetching latest subgraph state")
	fresh, err := t.api.GetSubgraphState(ctx)
	if err == nil {
		t.state = stateValid
		t.data = fresh
		t.has = true
		t.err = nil
		t.logger.Debug("retrieved new subgraph state")
		return
	}

	switch t.state {
	case stateUninitialized:
		t.logger.Error("failed to initialize subgraph state", zap.Error(err))
		t.err = err
	case stateValid:
		t.logger.Error("failed to retrieve latest subgraph state", zap.Error(err))
		t.state = stateFailed
		t.err = err
	case stateFailed:
		// Keep the previous snapshot, replace the error.
		t.logger.Error("failed to retrieve state from a previously failed subgraph", zap.Error(err))
		t.err = err
	}
}

// Data returns the current or last-known-good snapshot. The second return
// is false only while the tracker is still Uninitialized.
func (t *SubgraphStateTracker[S]) Data() (S, bool) {
	return t.data, t.has
}

// Error returns the most recent refresh error, if any.
func (t *SubgraphStateTracker[S]) Error() error {
	return t.err
}

func (t *SubgraphStateTracker[S]) IsValid() bool {
	return t.state == stateValid
}

func (t *SubgraphStateTracker[S]) IsUninitialized() bool {
	return t.state == stateUninitialized
}

func (t *SubgraphStateTracker[S]) IsFailed() bool {
	return t.state == stateFailed
}
