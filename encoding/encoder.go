package encoding

import (
	"fmt"
	"sort"
)

// CurrentEncodingVersion is the wire version this package produces and
// understands. UpdateVersion messages carrying any other value are rejected.
const CurrentEncodingVersion uint64 = 0

// CompressionError reports a violated compressor precondition. These are not
// retryable: they indicate a bug or drift between the oracle's configuration
// and the registry.
type CompressionError struct {
	Reason string
}

func (e *CompressionError) Error() string {
	return "compression: " + e.Reason
}

func compressionErrf(format string, args ...any) *CompressionError {
	return &CompressionError{Reason: fmt.Sprintf(format, args...)}
}

func errTruncated(what string) error {
	return fmt.Errorf("decode: truncated %s", what)
}

// Encoder compresses logical messages against its registry mirror and
// serializes them into the wire payload. The registry order is the
// subgraph's canonical order; a network's index is its slice position.
type Encoder struct {
	version  uint64
	networks []NamedNetwork
}

// NewEncoder creates an Encoder for the given wire version, seeded with the
// current registry state.
func NewEncoder(version uint64, networks []NamedNetwork) (*Encoder, error) {
	if version != CurrentEncodingVersion {
		return nil, compressionErrf("unsupported encoding version %d", version)
	}
	e := &Encoder{
		version:  version,
		networks: make([]NamedNetwork, len(networks)),
	}
	copy(e.networks, networks)
	return e, nil
}

// Networks returns a copy of the encoder's registry.
func (e *Encoder) Networks() []NamedNetwork {
	out := make([]NamedNetwork, len(e.networks))
	copy(out, e.networks)
	return out
}

// Encode compresses messages and serializes them into one payload,
// advancing the registry state.
func (e *Encoder) Encode(messages []Message) ([]byte, error) {
	compressed, err := e.Compress(messages)
	if err != nil {
		return nil, err
	}
	return EncodeCompressed(compressed), nil
}

// Compress turns logical messages into their compressed forms, applying
// registry mutations and delta arithmetic in message order.
func (e *Encoder) Compress(messages []Message) ([]CompressedMessage, error) {
	var out []CompressedMessage
	for _, m := range messages {
		switch msg := m.(type) {
		case SetBlockNumbersForNextEpoch:
			cm, err := e.compressBlockNumbers(msg, out)
			if err != nil {
				return nil, err
			}
			if cm == nil {
				// Coalesced into the preceding Empty message.
				continue
			}
			out = append(out, cm)
		case RegisterNetworks:
			if err := e.applyRegisterNetworks(msg); err != nil {
				return nil, err
			}
			out = append(out, msg)
		case CorrectEpochs:
			out = append(out, msg)
		case UpdateVersion:
			if msg.VersionNumber != CurrentEncodingVersion {
				return nil, compressionErrf("unsupported encoding version %d", msg.VersionNumber)
			}
			out = append(out, msg)
		case ChangeOwnership:
			out = append(out, msg)
		case Reset:
			out = append(out, msg)
		default:
			return nil, compressionErrf("unknown message type %T", m)
		}
	}
	return out, nil
}

// compressBlockNumbers returns nil when the message was coalesced into a
// preceding Empty run already present in prior.
func (e *Encoder) compressBlockNumbers(msg SetBlockNumbersForNextEpoch, prior []CompressedMessage) (CompressedMessage, error) {
	if len(e.networks) == 0 {
		if len(msg.BlockPtrs) != 0 {
			return nil, compressionErrf("network mismatch: %d block pointers for an empty registry", len(msg.BlockPtrs))
		}
		if len(prior) > 0 {
			if empty, ok := prior[len(prior)-1].(CompressedEmptyBlockNumbers); ok {
				prior[len(prior)-1] = CompressedEmptyBlockNumbers{Count: empty.Count + 1}
				return nil, nil
			}
		}
		return CompressedEmptyBlockNumbers{Count: 1}, nil
	}

	if len(msg.BlockPtrs) != len(e.networks) {
		return nil, compressionErrf(
			"network mismatch: got %d block pointers, registry has %d networks",
			len(msg.BlockPtrs), len(e.networks),
		)
	}

	accelerations := make([]int64, 0, len(e.networks))
	leaves := make([][32]byte, 0, len(e.networks))
	for i := range e.networks {
		entry := &e.networks[i]
		ptr, ok := msg.BlockPtrs[entry.Name]
		if !ok {
			return nil, compressionErrf("network mismatch: no block pointer for network %q", entry.Name)
		}
		newBlock := ptr.Number
		acceleration := int64(newBlock) - int64(entry.Network.BlockNumber) - entry.Network.BlockDelta
		entry.Network.BlockDelta = int64(newBlock) - int64(entry.Network.BlockNumber)
		entry.Network.BlockNumber = newBlock

		accelerations = append(accelerations, acceleration)
		leaves = append(leaves, blockLeaf(entry.Name, ptr))
	}

	return CompressedNonEmptyBlockNumbers{
		Accelerations: accelerations,
		Root:          MerkleRoot(leaves),
	}, nil
}

// applyRegisterNetworks mutates the registry: removals by index first, with
// indices referring to the registry as it stands when this message is
// applied, then additions appended in the given order. A second
// RegisterNetworks in the same pass sees the registry the first one left.
func (e *Encoder) applyRegisterNetworks(msg RegisterNetworks) error {
	if len(msg.Remove) == 0 && len(msg.Add) == 0 {
		return compressionErrf("register networks message with no removals and no additions")
	}

	seen := make(map[uint64]struct{}, len(msg.Remove))
	for _, idx := range msg.Remove {
		if idx >= uint64(len(e.networks)) {
			return compressionErrf("removal index %d out of range (registry has %d networks)", idx, len(e.networks))
		}
		if _, dup := seen[idx]; dup {
			return compressionErrf("duplicate removal index %d", idx)
		}
		seen[idx] = struct{}{}
	}

	// Remove back to front so earlier indices stay valid.
	remove := make([]uint64, len(msg.Remove))
	copy(remove, msg.Remove)
	sort.Slice(remove, func(i, j int) bool { return remove[i] > remove[j] })
	for _, idx := range remove {
		e.networks = append(e.networks[:idx], e.networks[idx+1:]...)
	}

	names := make(map[string]struct{}, len(e.networks))
	for _, n := range e.networks {
		names[n.Name] = struct{}{}
	}
	for _, name := range msg.Add {
		if _, dup := names[name]; dup {
			return compressionErrf("network %q is already registered", name)
		}
		names[name] = struct{}{}
		e.networks = append(e.networks, NamedNetwork{Name: name})
	}
	return nil
}

// EncodeCompressed serializes compressed messages into the wire payload:
// blocks of up to two messages, each block led by a preamble byte packing
// the message tags into its nibbles, followed by the message bodies.
func EncodeCompressed(messages []CompressedMessage) []byte {
	var bytes []byte
	for i := 0; i < len(messages); i += 2 {
		block := messages[i:min(i+2, len(messages))]
		preamble := block[0].tag()
		if len(block) == 2 {
			preamble |= block[1].tag() << 4
		}
		bytes = append(bytes, preamble)
		for _, m := range block {
			bytes = appendMessageBody(bytes, m)
		}
	}
	return bytes
}

func appendMessageBody(dst []byte, m CompressedMessage) []byte {
	switch msg := m.(type) {
	case CompressedEmptyBlockNumbers:
		return AppendUint64(dst, msg.Count)
	case CompressedNonEmptyBlockNumbers:
		dst = append(dst, msg.Root[:]...)
		for _, a := range msg.Accelerations {
			dst = AppendInt64(dst, a)
		}
		return dst
	case RegisterNetworks:
		dst = AppendUint64(dst, uint64(len(msg.Remove)))
		for _, idx := range msg.Remove {
			dst = AppendUint64(dst, idx)
		}
		dst = AppendUint64(dst, uint64(len(msg.Add)))
		for _, name := range msg.Add {
			dst = AppendString(dst, name)
		}
		return dst
	case CorrectEpochs:
		dst = AppendUint64(dst, uint64(len(msg.Corrections)))
		for _, c := range msg.Corrections {
			dst = AppendUint64(dst, c.NetworkIndex)
			dst = append(dst, c.TxHash[:]...)
			dst = append(dst, c.MerkleRoot[:]...)
		}
		return dst
	case UpdateVersion:
		return AppendUint64(dst, msg.VersionNumber)
	case ChangeOwnership:
		return append(dst, msg.Address[:]...)
	case Reset:
		return dst
	default:
		panic(fmt.Sprintf("unknown compressed message type %T", m))
	}
}
