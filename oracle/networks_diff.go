package oracle

import (
	"github.com/edgeandnode/block-oracle/encoding"
)

// NetworksDiff is the registry mutation needed to make the on-chain network
// set match the configured one. Deletions are in ascending index order and
// insertions in the order the configuration presents them.
type NetworksDiff struct {
	Insertions []NetworkInsertion
	Deletions  []NetworkDeletion
}

// NetworkInsertion is a configured chain missing from the registry. Position
// is the index the network will occupy once registered.
type NetworkInsertion struct {
	ID       Caip2ChainID
	Position uint64
}

// NetworkDeletion is a registered chain no longer present in the
// configuration, addressed by its registry index.
type NetworkDeletion struct {
	ID    Caip2ChainID
	Index uint64
}

// CalculateNetworksDiff compares the configured chain set against the
// registered one. The registered slice is in the registry's canonical order,
// so a network's slice position is its index.
func CalculateNetworksDiff(configured []Caip2ChainID, registered []SubgraphNetwork) NetworksDiff {
	configuredSet := make(map[Caip2ChainID]struct{}, len(configured))
	for _, id := range configured {
		configuredSet[id] = struct{}{}
	}
	registeredSet := make(map[Caip2ChainID]struct{}, len(registered))
	for _, network := range registered {
		registeredSet[network.ID] = struct{}{}
	}

	var diff NetworksDiff
	for i, network := range registered {
		if _, ok := configuredSet[network.ID]; !ok {
			diff.Deletions = append(diff.Deletions, NetworkDeletion{ID: network.ID, Index: uint64(i)})
		}
	}
	next := uint64(len(registered))
	for _, id := range configured {
		if _, ok := registeredSet[id]; !ok {
			diff.Insertions = append(diff.Insertions, NetworkInsertion{ID: id, Position: next})
			next++
		}
	}
	return diff
}

// IsEmpty reports whether the configured and registered sets already match.
func (d NetworksDiff) IsEmpty() bool {
	return len(d.Insertions) == 0 && len(d.Deletions) == 0
}

// ToMessage maps the diff to at most one RegisterNetworks message, or nil
// when there is nothing to change.
func (d NetworksDiff) ToMessage() *encoding.RegisterNetworks {
	if d.IsEmpty() {
		return nil
	}
	msg := &encoding.RegisterNetworks{
		Remove: make([]uint64, 0, len(d.Deletions)),
		Add:    make([]string, 0, len(d.Insertions)),
	}
	for _, deletion := range d.Deletions {
		msg.Remove = append(msg.Remove, deletion.Index)
	}
	for _, insertion := range d.Insertions {
		msg.Add = append(msg.Add, insertion.ID.String())
	}
	return msg
}
