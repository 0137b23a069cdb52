package wire

// Variable-length integers with a 2-bit length prefix, as used on the wire
// by the probed protocol. The prefix encodes the total width: 1, 2, 4 or 8
// bytes; the remaining bits carry the value big-endian.

const (
	maxVarint1 = 1<<6 - 1
	maxVarint2 = 1<<14 - 1
	maxVarint4 = 1<<30 - 1
	// MaxVarint is the largest encodable value.
	MaxVarint = 1<<62 - 1
)

// AppendVarint appends the encoding of v to b. Values above MaxVarint are
// truncated to 62 bits.
func AppendVarint(b []byte, v uint64) []byte {
	v &= MaxVarint
	switch {
	case v <= maxVarint1:
		return append(b, byte(v))
	case v <= maxVarint2:
		return append(b, 0x40|byte(v>>8), byte(v))
	case v <= maxVarint4:
		return append(b, 0x80|byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(b,
			0xc0|byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// ReadVarint decodes one varint from b. It returns the value and the number
// of bytes consumed; n == 0 means b does not hold a complete varint yet.
func ReadVarint(b []byte) (v uint64, n int) {
	if len(b) == 0 {
		return 0, 0
	}
	width := 1 << (b[0] >> 6)
	if len(b) < width {
		return 0, 0
	}
	v = uint64(b[0] & 0x3f)
	for i := 1; i < width; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, width
}
