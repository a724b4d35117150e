package encoding

import (
	"fmt"
	"unicode/utf8"
)

// Decoder is the inverse of Encoder. Initialized from the same registry
// state, it reconstructs the compressed message stream from a payload and
// advances its registry mirror identically, so that after decoding a payload
// produced by an Encoder both registries are equal.
type Decoder struct {
	version  uint64
	networks []NamedNetwork
}

// NewDecoder creates a Decoder for the given wire version, seeded with the
// registry state the payload was encoded against.
func NewDecoder(version uint64, networks []NamedNetwork) (*Decoder, error) {
	if version != CurrentEncodingVersion {
		return nil, compressionErrf("unsupported encoding version %d", version)
	}
	d := &Decoder{
		version:  version,
		networks: make([]NamedNetwork, len(networks)),
	}
	copy(d.networks, networks)
	return d, nil
}

// Networks returns a copy of the decoder's registry.
func (d *Decoder) Networks() []NamedNetwork {
	out := make([]NamedNetwork, len(d.networks))
	copy(out, d.networks)
	return out
}

type payloadCursor struct {
	b   []byte
	pos int
}

func (c *payloadCursor) remaining() int {
	return len(c.b) - c.pos
}

func (c *payloadCursor) readExact(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, errTruncated("bytes")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *payloadCursor) readU64() (uint64, error) {
	v, used, err := DecodeUint64(c.b[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += used
	return v, nil
}

func (c *payloadCursor) readI64() (int64, error) {
	v, used, err := DecodeInt64(c.b[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += used
	return v, nil
}

func (c *payloadCursor) readString() (string, error) {
	n, err := c.readU64()
	if err != nil {
		return "", err
	}
	if n > uint64(c.remaining()) {
		return "", errTruncated("string")
	}
	raw, err := c.readExact(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("decode: string is not valid UTF-8")
	}
	return string(raw), nil
}

// Decode parses a full payload. Messages arrive in blocks of up to two; a
// block with an absent second message is only ever the final block.
func (d *Decoder) Decode(payload []byte) ([]CompressedMessage, error) {
	cur := &payloadCursor{b: payload}
	var out []CompressedMessage
	for cur.remaining() > 0 {
		preamble, err := cur.readExact(1)
		if err != nil {
			return nil, err
		}
		tags := [2]byte{preamble[0] & 0x0F, preamble[0] >> 4}

		first, err := d.decodeMessage(cur, tags[0])
		if err != nil {
			return nil, err
		}
		out = append(out, first)

		// A zero upper nibble is ambiguous between "no second message"
		// and a trailing SetBlockNumbers tag. Since a SetBlockNumbers
		// body is never empty, the block has a second message exactly
		// when its tag is nonzero or bytes remain.
		if tags[1] == 0 && cur.remaining() == 0 {
			break
		}
		second, err := d.decodeMessage(cur, tags[1])
		if err != nil {
			return nil, err
		}
		out = append(out, second)
	}
	return out, nil
}

func (d *Decoder) decodeMessage(cur *payloadCursor, tag byte) (CompressedMessage, error) {
	switch tag {
	case tagSetBlockNumbers:
		return d.decodeBlockNumbers(cur)
	case tagCorrectEpochs:
		return decodeCorrectEpochs(cur)
	case tagUpdateVersion:
		version, err := cur.readU64()
		if err != nil {
			return nil, err
		}
		if version != CurrentEncodingVersion {
			return nil, compressionErrf("unsupported encoding version %d", version)
		}
		return UpdateVersion{VersionNumber: version}, nil
	case tagRegisterNetworks:
		return d.decodeRegisterNetworks(cur)
	case tagReset:
		return Reset{}, nil
	case tagChangeOwnership:
		raw, err := cur.readExact(20)
		if err != nil {
			return nil, err
		}
		var msg ChangeOwnership
		copy(msg.Address[:], raw)
		return msg, nil
	default:
		return nil, fmt.Errorf("decode: unknown message tag %#x", tag)
	}
}

func (d *Decoder) decodeBlockNumbers(cur *payloadCursor) (CompressedMessage, error) {
	if len(d.networks) == 0 {
		count, err := cur.readU64()
		if err != nil {
			return nil, err
		}
		return CompressedEmptyBlockNumbers{Count: count}, nil
	}

	raw, err := cur.readExact(32)
	if err != nil {
		return nil, err
	}
	var root [32]byte
	copy(root[:], raw)

	accelerations := make([]int64, len(d.networks))
	for i := range d.networks {
		a, err := cur.readI64()
		if err != nil {
			return nil, err
		}
		accelerations[i] = a

		entry := &d.networks[i]
		newBlock := int64(entry.Network.BlockNumber) + entry.Network.BlockDelta + a
		entry.Network.BlockDelta = newBlock - int64(entry.Network.BlockNumber)
		entry.Network.BlockNumber = uint64(newBlock)
	}
	return CompressedNonEmptyBlockNumbers{Accelerations: accelerations, Root: root}, nil
}

func (d *Decoder) decodeRegisterNetworks(cur *payloadCursor) (CompressedMessage, error) {
	removeCount, err := cur.readU64()
	if err != nil {
		return nil, err
	}
	if removeCount > uint64(len(d.networks)) {
		return nil, fmt.Errorf("decode: %d removals exceed registry size %d", removeCount, len(d.networks))
	}
	remove := make([]uint64, 0, removeCount)
	for i := uint64(0); i < removeCount; i++ {
		idx, err := cur.readU64()
		if err != nil {
			return nil, err
		}
		remove = append(remove, idx)
	}

	addCount, err := cur.readU64()
	if err != nil {
		return nil, err
	}
	if addCount > uint64(cur.remaining()) {
		return nil, errTruncated("network names")
	}
	add := make([]string, 0, addCount)
	for i := uint64(0); i < addCount; i++ {
		name, err := cur.readString()
		if err != nil {
			return nil, err
		}
		add = append(add, name)
	}

	msg := RegisterNetworks{Remove: remove, Add: add}
	mirror := Encoder{version: d.version, networks: d.networks}
	if err := mirror.applyRegisterNetworks(msg); err != nil {
		return nil, err
	}
	d.networks = mirror.networks
	return msg, nil
}

func decodeCorrectEpochs(cur *payloadCursor) (CompressedMessage, error) {
	count, err := cur.readU64()
	if err != nil {
		return nil, err
	}
	if count > uint64(cur.remaining()) {
		return nil, errTruncated("epoch corrections")
	}
	corrections := make([]EpochCorrection, 0, count)
	var prev uint64
	for i := uint64(0); i < count; i++ {
		var c EpochCorrection
		if c.NetworkIndex, err = cur.readU64(); err != nil {
			return nil, err
		}
		if i > 0 && c.NetworkIndex <= prev {
			return nil, fmt.Errorf("decode: epoch corrections out of order at index %d", c.NetworkIndex)
		}
		prev = c.NetworkIndex
		raw, err := cur.readExact(32)
		if err != nil {
			return nil, err
		}
		copy(c.TxHash[:], raw)
		if raw, err = cur.readExact(32); err != nil {
			return nil, err
		}
		copy(c.MerkleRoot[:], raw)
		corrections = append(corrections, c)
	}
	return CorrectEpochs{Corrections: corrections}, nil
}
