package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeTraceReader struct {
	traces []Trace
	err    error
	calls  int
}

func (f *fakeTraceReader) GetTracesInBlockRange(_ context.Context, fromBlock, toBlock uint64, _, _ common.Address) ([]Trace, error) {
	f.calls++
	if fromBlock > toBlock {
		return nil, errors.New("invalid range")
	}
	return f.traces, f.err
}

func TestFreshnessBoundary(t *testing.T) {
	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")
	contract := common.HexToAddress("0x0000000000000000000000000000000000000002")
	const threshold = 10

	cases := []struct {
		name       string
		subgraph   uint64
		head       uint64
		traces     []Trace
		wantFresh  bool
		wantTraced bool
	}{
		{"subgraph ahead of stale head snapshot", 101, 100, nil, true, false},
		{"zero gap", 100, 100, nil, true, false},
		{"gap of one, no calls", 99, 100, nil, true, true},
		{"gap at threshold, no calls", 90, 100, nil, true, true},
		{"gap of one, pending call", 99, 100, []Trace{{BlockNumber: 100}}, false, true},
		{"gap at threshold, pending call", 90, 100, []Trace{{BlockNumber: 95}}, false, true},
		{"gap beyond threshold", 89, 100, nil, false, false},
	}
	for _, tc := range cases {
		reader := &fakeTraceReader{traces: tc.traces}
		fresh, err := IsSubgraphFresh(context.Background(), tc.subgraph, tc.head, reader, owner, contract, threshold, zap.NewNop())
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if fresh != tc.wantFresh {
			t.Fatalf("%s: fresh = %v, want %v", tc.name, fresh, tc.wantFresh)
		}
		if traced := reader.calls > 0; traced != tc.wantTraced {
			t.Fatalf("%s: traced = %v, want %v", tc.name, traced, tc.wantTraced)
		}
	}
}

func TestFreshnessSurfacesRPCErrors(t *testing.T) {
	reader := &fakeTraceReader{err: errors.New("rpc down")}
	_, err := IsSubgraphFresh(context.Background(), 95, 100, reader, common.Address{}, common.Address{}, 10, zap.NewNop())
	if err == nil {
		t.Fatal("expected the trace error to surface")
	}
}
