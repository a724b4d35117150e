package encoding

import "math/bits"

// Prefix varint: the number of leading 1-bits in the first byte tells how
// many additional bytes follow (0..8); the remaining bits of the first byte
// are the high bits of the value, with the tail in big-endian order. A u64
// therefore occupies 1-9 bytes, and the length is known from the first byte
// alone.

// AppendUint64 appends v to dst as a prefix varint.
func AppendUint64(dst []byte, v uint64) []byte {
	n := 1
	if v > 0 {
		n = (bits.Len64(v) + 6) / 7
	}
	if n >= 9 {
		dst = append(dst, 0xFF)
		for shift := 56; shift >= 0; shift -= 8 {
			dst = append(dst, byte(v>>shift))
		}
		return dst
	}
	first := byte(0xFF<<(9-n)) | byte(v>>(8*(n-1)))
	dst = append(dst, first)
	for i := n - 2; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// AppendInt64 appends v to dst ZigZag-mapped and prefix-varint coded.
func AppendInt64(dst []byte, v int64) []byte {
	return AppendUint64(dst, ZigZagEncode(v))
}

// AppendString appends the length of s as a prefix varint followed by its
// raw UTF-8 bytes.
func AppendString(dst []byte, s string) []byte {
	dst = AppendUint64(dst, uint64(len(s)))
	return append(dst, s...)
}

// DecodeUint64 decodes a prefix varint from the front of b, returning the
// value and the number of bytes consumed.
func DecodeUint64(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, errTruncated("u64")
	}
	first := b[0]
	extra := bits.LeadingZeros8(^first)
	if extra > 8 {
		extra = 8
	}
	if len(b) < 1+extra {
		return 0, 0, errTruncated("u64")
	}
	var v uint64
	if extra < 8 {
		v = uint64(first & byte(0xFF>>(extra+1)))
	}
	for i := 0; i < extra; i++ {
		v = v<<8 | uint64(b[1+i])
	}
	return v, 1 + extra, nil
}

// DecodeInt64 decodes a ZigZag prefix varint from the front of b.
func DecodeInt64(b []byte) (int64, int, error) {
	u, n, err := DecodeUint64(b)
	if err != nil {
		return 0, 0, err
	}
	return ZigZagDecode(u), n, nil
}

// ZigZagEncode maps signed integers to unsigned ones so that values of small
// magnitude in either direction get small codes.
func ZigZagEncode(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// ZigZagDecode is the inverse of ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
