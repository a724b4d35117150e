package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubgraphAPI struct {
	counter int
	fail    bool
	err     error
}

func (f *fakeSubgraphAPI) GetSubgraphState(context.Context) (int, error) {
	if f.fail {
		return 0, f.err
	}
	f.counter++
	return f.counter, nil
}

func TestSubgraphStateTransitions(t *testing.T) {
	ctx := context.Background()
	api := &fakeSubgraphAPI{err: errors.New("oops")}
	tracker := NewSubgraphStateTracker[int](api, zap.NewNop())

	// The initial state is uninitialized, with no data and no error.
	_, ok := tracker.Data()
	require.False(t, ok)
	require.NoError(t, tracker.Error())
	require.True(t, tracker.IsUninitialized())
	require.False(t, tracker.IsValid())

	// Initialization can fail; the state stays uninitialized and keeps
	// the error.
	api.fail = true
	tracker.Refresh(ctx)
	_, ok = tracker.Data()
	require.False(t, ok)
	require.EqualError(t, tracker.Error(), "oops")
	require.True(t, tracker.IsUninitialized())

	// Once initialized, we have data.
	api.fail = false
	tracker.Refresh(ctx)
	data, ok := tracker.Data()
	require.True(t, ok)
	require.Equal(t, 1, data)
	require.NoError(t, tracker.Error())
	require.True(t, tracker.IsValid())

	// On failure the last valid data is retained, but the state is
	// invalid.
	api.fail = true
	tracker.Refresh(ctx)
	data, ok = tracker.Data()
	require.True(t, ok)
	require.Equal(t, 1, data)
	require.EqualError(t, tracker.Error(), "oops")
	require.True(t, tracker.IsFailed())
	require.False(t, tracker.IsValid())

	// Repeated failures keep the data and replace the error.
	api.err = errors.New("oh no")
	tracker.Refresh(ctx)
	data, _ = tracker.Data()
	require.Equal(t, 1, data)
	require.EqualError(t, tracker.Error(), "oh no")
	require.True(t, tracker.IsFailed())

	// Recovery presents new data.
	api.fail = false
	tracker.Refresh(ctx)
	data, _ = tracker.Data()
	require.Equal(t, 2, data)
	require.True(t, tracker.IsValid())
	require.NoError(t, tracker.Error())

	// Valid states chain.
	tracker.Refresh(ctx)
	data, _ = tracker.Data()
	require.Equal(t, 3, data)
	require.True(t, tracker.IsValid())
}

func TestSubgraphStateSnapshotSurvivesRefresh(t *testing.T) {
	ctx := context.Background()
	api := &fakeSubgraphAPI{err: errors.New("down")}
	tracker := NewSubgraphStateTracker[int](api, zap.NewNop())

	tracker.Refresh(ctx)
	snapshot, ok := tracker.Data()
	require.True(t, ok)

	// A long run of failures never disturbs the held snapshot.
	api.fail = true
	for i := 0; i < 5; i++ {
		tracker.Refresh(ctx)
		data, ok := tracker.Data()
		require.True(t, ok)
		require.Equal(t, snapshot, data)
	}

	api.fail = false
	tracker.Refresh(ctx)
	data, _ := tracker.Data()
	require.Equal(t, snapshot+1, data)
}
