package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func mustEncoder(t *testing.T, networks []NamedNetwork) *Encoder {
	t.Helper()
	e, err := NewEncoder(CurrentEncodingVersion, networks)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return e
}

func hashFromByte(b byte) (h [32]byte) {
	for i := range h {
		h[i] = b
	}
	return h
}

func TestEncodeEmptyRegistryEmptyMessage(t *testing.T) {
	e := mustEncoder(t, nil)
	payload, err := e.Encode([]Message{
		SetBlockNumbersForNextEpoch{BlockPtrs: map[string]BlockPtr{}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x00, 0x01}) {
		t.Fatalf("got %x, want 0001", payload)
	}
}

func TestEncodeCoalescesEmptyRuns(t *testing.T) {
	e := mustEncoder(t, nil)
	messages := []Message{
		SetBlockNumbersForNextEpoch{},
		SetBlockNumbersForNextEpoch{},
		SetBlockNumbersForNextEpoch{},
	}
	compressed, err := e.Compress(messages)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) != 1 {
		t.Fatalf("expected one coalesced message, got %d", len(compressed))
	}
	empty, ok := compressed[0].(CompressedEmptyBlockNumbers)
	if !ok || empty.Count != 3 {
		t.Fatalf("expected Empty{3}, got %#v", compressed[0])
	}
	if payload := EncodeCompressed(compressed); !bytes.Equal(payload, []byte{0x00, 0x03}) {
		t.Fatalf("got %x, want 0003", payload)
	}
}

func TestSingleChainAcceleration(t *testing.T) {
	e := mustEncoder(t, []NamedNetwork{
		{Name: "eip155:1", Network: Network{BlockNumber: 100, BlockDelta: 5}},
	})
	hash := hashFromByte(0xAB)
	compressed, err := e.Compress([]Message{
		SetBlockNumbersForNextEpoch{BlockPtrs: map[string]BlockPtr{
			"eip155:1": {Number: 108, Hash: hash},
		}},
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	nonEmpty, ok := compressed[0].(CompressedNonEmptyBlockNumbers)
	if !ok {
		t.Fatalf("expected NonEmpty, got %#v", compressed[0])
	}
	if len(nonEmpty.Accelerations) != 1 || nonEmpty.Accelerations[0] != 3 {
		t.Fatalf("expected acceleration 3, got %v", nonEmpty.Accelerations)
	}

	networks := e.Networks()
	if networks[0].Network.BlockNumber != 108 || networks[0].Network.BlockDelta != 8 {
		t.Fatalf("expected state {108, 8}, got %+v", networks[0].Network)
	}

	// new_block = old_block + old_delta + acceleration
	if 100+5+nonEmpty.Accelerations[0] != 108 {
		t.Fatalf("acceleration identity does not hold")
	}

	var num [8]byte
	binary.BigEndian.PutUint64(num[:], 108)
	wantRoot := Keccak256([]byte("eip155:1"), num[:], hash[:])
	if nonEmpty.Root != wantRoot {
		t.Fatalf("root: got %x, want %x", nonEmpty.Root, wantRoot)
	}
}

func TestRegisterAndSetInOneCycle(t *testing.T) {
	e := mustEncoder(t, nil)
	hash := hashFromByte(0x11)
	payload, err := e.Encode([]Message{
		RegisterNetworks{Add: []string{"eip155:137"}},
		SetBlockNumbersForNextEpoch{BlockPtrs: map[string]BlockPtr{
			"eip155:137": {Number: 42, Hash: hash},
		}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var want []byte
	want = append(want, 0x03) // RegisterNetworks in the lower nibble, SetBlockNumbers in the upper
	want = AppendUint64(want, 0)
	want = AppendUint64(want, 1)
	want = AppendString(want, "eip155:137")
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], 42)
	root := Keccak256([]byte("eip155:137"), num[:], hash[:])
	want = append(want, root[:]...)
	want = append(want, 0x54) // encode_i64(42)
	if !bytes.Equal(payload, want) {
		t.Fatalf("got %x, want %x", payload, want)
	}

	networks := e.Networks()
	if len(networks) != 1 || networks[0].Name != "eip155:137" {
		t.Fatalf("unexpected registry: %+v", networks)
	}
	if networks[0].Network.BlockNumber != 42 || networks[0].Network.BlockDelta != 42 {
		t.Fatalf("expected state {42, 42}, got %+v", networks[0].Network)
	}
}

func TestRegisterNetworksWithRemoval(t *testing.T) {
	e := mustEncoder(t, []NamedNetwork{
		{Name: "aaa:1", Network: Network{BlockNumber: 10}},
		{Name: "bbb:2", Network: Network{BlockNumber: 20}},
		{Name: "ccc:3", Network: Network{BlockNumber: 30}},
	})
	compressed, err := e.Compress([]Message{
		RegisterNetworks{Remove: []uint64{1}, Add: []string{"ddd:4"}},
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	payload := EncodeCompressed(compressed)
	var want []byte
	want = append(want, 0x03) // single RegisterNetworks block
	want = AppendUint64(want, 1)
	want = AppendUint64(want, 1)
	want = AppendUint64(want, 1)
	want = AppendString(want, "ddd:4")
	if !bytes.Equal(payload, want) {
		t.Fatalf("got %x, want %x", payload, want)
	}

	names := []string{}
	for _, n := range e.Networks() {
		names = append(names, n.Name)
	}
	wantNames := []string{"aaa:1", "ccc:3", "ddd:4"}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Fatalf("registry after mutation: got %v, want %v", names, wantNames)
		}
	}
}

func TestRegistryMutationPrecedesAccelerations(t *testing.T) {
	e := mustEncoder(t, []NamedNetwork{
		{Name: "aaa:1", Network: Network{BlockNumber: 10, BlockDelta: 2}},
		{Name: "bbb:2", Network: Network{BlockNumber: 20, BlockDelta: 4}},
	})
	compressed, err := e.Compress([]Message{
		RegisterNetworks{Remove: []uint64{0}},
		SetBlockNumbersForNextEpoch{BlockPtrs: map[string]BlockPtr{
			"bbb:2": {Number: 26, Hash: hashFromByte(0x01)},
		}},
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	nonEmpty := compressed[1].(CompressedNonEmptyBlockNumbers)
	if len(nonEmpty.Accelerations) != 1 || nonEmpty.Accelerations[0] != 2 {
		t.Fatalf("expected accelerations [2], got %v", nonEmpty.Accelerations)
	}
}

func TestNetworkMismatch(t *testing.T) {
	cases := []struct {
		name      string
		blockPtrs map[string]BlockPtr
	}{
		{"missing key", map[string]BlockPtr{}},
		{"extra key", map[string]BlockPtr{
			"aaa:1": {Number: 11},
			"zzz:9": {Number: 99},
		}},
		{"wrong key", map[string]BlockPtr{"zzz:9": {Number: 99}}},
	}
	for _, tc := range cases {
		e := mustEncoder(t, []NamedNetwork{
			{Name: "aaa:1", Network: Network{BlockNumber: 10}},
		})
		_, err := e.Compress([]Message{SetBlockNumbersForNextEpoch{BlockPtrs: tc.blockPtrs}})
		var cerr *CompressionError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected a CompressionError, got %v", tc.name, err)
		}
	}
}

func TestEmptyRegisterNetworksRejected(t *testing.T) {
	e := mustEncoder(t, nil)
	if _, err := e.Compress([]Message{RegisterNetworks{}}); err == nil {
		t.Fatal("expected an error for a RegisterNetworks message with no content")
	}
}

func TestRemovalIndexOutOfRange(t *testing.T) {
	e := mustEncoder(t, []NamedNetwork{{Name: "aaa:1"}})
	if _, err := e.Compress([]Message{RegisterNetworks{Remove: []uint64{1}}}); err == nil {
		t.Fatal("expected an error for an out-of-range removal index")
	}
}

func TestUnsupportedVersion(t *testing.T) {
	if _, err := NewEncoder(CurrentEncodingVersion+1, nil); err == nil {
		t.Fatal("expected an error for an unsupported encoder version")
	}
	e := mustEncoder(t, nil)
	if _, err := e.Compress([]Message{UpdateVersion{VersionNumber: 7}}); err == nil {
		t.Fatal("expected an error for an unsupported version update")
	}
}

func TestPassThroughMessagesShareOneBlock(t *testing.T) {
	e := mustEncoder(t, nil)
	payload, err := e.Encode([]Message{
		UpdateVersion{VersionNumber: 0},
		Reset{},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Preamble 0x42: UpdateVersion (2) low, Reset (4) high; then the
	// version varint. Reset has no body.
	if !bytes.Equal(payload, []byte{0x42, 0x00}) {
		t.Fatalf("got %x, want 4200", payload)
	}
}

func TestChangeOwnershipBody(t *testing.T) {
	var addr [20]byte
	for i := range addr {
		addr[i] = byte(i)
	}
	e := mustEncoder(t, nil)
	payload, err := e.Encode([]Message{ChangeOwnership{Address: addr}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := append([]byte{0x05}, addr[:]...)
	if !bytes.Equal(payload, want) {
		t.Fatalf("got %x, want %x", payload, want)
	}
}
