package oracle

import (
	"errors"
	"sync"
)

// EpochTracker maps protocol-chain block numbers to epoch ordinals and
// remembers the last epoch it has seen, so the loop acts once per epoch.
type EpochTracker struct {
	epochDuration uint64

	mu        sync.Mutex
	lastEpoch uint64
	seeded    bool
}

func NewEpochTracker(epochDuration uint64) (*EpochTracker, error) {
	if epochDuration == 0 {
		return nil, &EpochTrackerError{Err: errors.New("epoch duration must be > 0")}
	}
	return &EpochTracker{epochDuration: epochDuration}, nil
}

// Seed initializes the last observed epoch from the subgraph's most recent
// finalized epoch. Only the first call has any effect; without a seed the
// tracker starts at zero, so the first observed epoch on a running chain
// triggers exactly one catch-up transition.
func (t *EpochTracker) Seed(epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seeded {
		return
	}
	t.seeded = true
	if epoch > t.lastEpoch {
		t.lastEpoch = epoch
	}
}

// Epoch returns the epoch ordinal containing blockNumber.
func (t *EpochTracker) Epoch(blockNumber uint64) uint64 {
	return blockNumber / t.epochDuration
}

// IsNewEpoch reports whether blockNumber belongs to a later epoch than the
// last observed one, updating the tracker before returning true.
func (t *EpochTracker) IsNewEpoch(blockNumber uint64) bool {
	epoch := t.Epoch(blockNumber)
	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch <= t.lastEpoch {
		return false
	}
	t.lastEpoch = epoch
	return true
}
