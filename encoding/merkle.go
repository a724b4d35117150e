package encoding

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices with the
// legacy Keccak-256 permutation used by Ethereum.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleRoot computes the root of a binary Keccak-256 tree over an ordered
// leaf sequence. A level with an odd node count duplicates its final node.
// The root of an empty sequence is all zeros; a singleton is its own root.
func MerkleRoot(leaves [][32]byte) [32]byte {
	var zero [32]byte
	if len(leaves) == 0 {
		return zero
	}

	level := make([][32]byte, len(leaves))
	copy(level, leaves)

	var pair [64]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			copy(pair[:32], level[i][:])
			copy(pair[32:], level[i+1][:])
			next = append(next, Keccak256(pair[:]))
		}
		level = next
	}
	return level[0]
}

// blockLeaf is the merkle leaf committed per network each epoch:
// keccak256(name || block_number_be8 || block_hash).
func blockLeaf(name string, ptr BlockPtr) [32]byte {
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], ptr.Number)
	return Keccak256([]byte(name), num[:], ptr.Hash[:])
}
