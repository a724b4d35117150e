package oracle

import (
	"reflect"
	"testing"
)

func chainID(t *testing.T, s string) Caip2ChainID {
	t.Helper()
	id, err := NewCaip2ChainID(s)
	if err != nil {
		t.Fatalf("NewCaip2ChainID(%q): %v", s, err)
	}
	return id
}

func subgraphNetworks(t *testing.T, names ...string) []SubgraphNetwork {
	t.Helper()
	networks := make([]SubgraphNetwork, len(names))
	for i, name := range names {
		networks[i] = SubgraphNetwork{ID: chainID(t, name)}
	}
	return networks
}

func TestNetworksDiffEmptyWhenSetsMatch(t *testing.T) {
	configured := []Caip2ChainID{chainID(t, "eip155:1"), chainID(t, "eip155:137")}
	registered := subgraphNetworks(t, "eip155:1", "eip155:137")
	diff := CalculateNetworksDiff(configured, registered)
	if !diff.IsEmpty() {
		t.Fatalf("expected an empty diff, got %+v", diff)
	}
	if diff.ToMessage() != nil {
		t.Fatal("an empty diff must not map to a message")
	}
}

func TestNetworksDiffRemoveAndAdd(t *testing.T) {
	// Registry [0: A, 1: B, 2: C]; the configuration drops B and adds D.
	configured := []Caip2ChainID{chainID(t, "net:a"), chainID(t, "net:c"), chainID(t, "net:d")}
	registered := subgraphNetworks(t, "net:a", "net:b", "net:c")

	diff := CalculateNetworksDiff(configured, registered)
	wantDeletions := []NetworkDeletion{{ID: chainID(t, "net:b"), Index: 1}}
	wantInsertions := []NetworkInsertion{{ID: chainID(t, "net:d"), Position: 3}}
	if !reflect.DeepEqual(diff.Deletions, wantDeletions) {
		t.Fatalf("deletions: got %+v, want %+v", diff.Deletions, wantDeletions)
	}
	if !reflect.DeepEqual(diff.Insertions, wantInsertions) {
		t.Fatalf("insertions: got %+v, want %+v", diff.Insertions, wantInsertions)
	}

	msg := diff.ToMessage()
	if msg == nil {
		t.Fatal("expected a RegisterNetworks message")
	}
	if !reflect.DeepEqual(msg.Remove, []uint64{1}) || !reflect.DeepEqual(msg.Add, []string{"net:d"}) {
		t.Fatalf("message: got %+v", msg)
	}
}

func TestNetworksDiffOrdering(t *testing.T) {
	// Deletions ascend by index, insertions follow configuration order.
	configured := []Caip2ChainID{chainID(t, "new:2"), chainID(t, "new:1")}
	registered := subgraphNetworks(t, "old:1", "old:2", "old:3")

	diff := CalculateNetworksDiff(configured, registered)
	for i := 1; i < len(diff.Deletions); i++ {
		if diff.Deletions[i].Index <= diff.Deletions[i-1].Index {
			t.Fatalf("deletions are not ascending: %+v", diff.Deletions)
		}
	}
	if diff.Insertions[0].ID != chainID(t, "new:2") || diff.Insertions[1].ID != chainID(t, "new:1") {
		t.Fatalf("insertions do not follow configuration order: %+v", diff.Insertions)
	}
}

// Applying the computed diff and recomputing yields an empty diff.
func TestNetworksDiffIdempotence(t *testing.T) {
	configured := []Caip2ChainID{chainID(t, "net:a"), chainID(t, "net:c"), chainID(t, "net:d")}
	registered := subgraphNetworks(t, "net:a", "net:b", "net:c")

	diff := CalculateNetworksDiff(configured, registered)

	applied := make([]SubgraphNetwork, 0, len(registered))
	deleted := make(map[uint64]struct{}, len(diff.Deletions))
	for _, deletion := range diff.Deletions {
		deleted[deletion.Index] = struct{}{}
	}
	for i, network := range registered {
		if _, ok := deleted[uint64(i)]; !ok {
			applied = append(applied, network)
		}
	}
	for _, insertion := range diff.Insertions {
		applied = append(applied, SubgraphNetwork{ID: insertion.ID})
	}

	if rediff := CalculateNetworksDiff(configured, applied); !rediff.IsEmpty() {
		t.Fatalf("expected an empty diff after applying, got %+v", rediff)
	}
}
