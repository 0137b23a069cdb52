package wire

import (
	"errors"
	"fmt"
)

// Frame wire format: varint type, varint payload length, payload bytes.

// ErrNeedMore means the buffered bytes do not yet hold a complete frame.
var ErrNeedMore = errors.New("need more bytes")

// MaxFramePayload bounds a single frame payload. Anything larger is treated
// as a malformed stream.
const MaxFramePayload = 1 << 20

// Parser incrementally decodes frames from one stream's byte sequence.
// Partial frames carry over between Feed calls. A Parser is single-stream:
// decode state is never shared across stream ids.
type Parser struct {
	buf []byte
}

// Feed appends newly arrived stream bytes.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Buffered returns the number of bytes awaiting a complete frame.
func (p *Parser) Buffered() int { return len(p.buf) }

// Next decodes the next complete frame. It returns ErrNeedMore when the
// buffer holds only a partial frame; any other error means the stream is
// malformed and cannot be decoded further.
func (p *Parser) Next() (typ uint64, payload []byte, err error) {
	typ, n := ReadVarint(p.buf)
	if n == 0 {
		return 0, nil, ErrNeedMore
	}
	length, m := ReadVarint(p.buf[n:])
	if m == 0 {
		return 0, nil, ErrNeedMore
	}
	if length > MaxFramePayload {
		return 0, nil, fmt.Errorf("frame payload of %d bytes exceeds limit", length)
	}
	total := n + m + int(length)
	if len(p.buf) < total {
		return 0, nil, ErrNeedMore
	}
	payload = make([]byte, length)
	copy(payload, p.buf[n+m:total])
	p.buf = p.buf[:copy(p.buf, p.buf[total:])]
	return typ, payload, nil
}

// AppendFrame appends the encoding of one frame to dst.
func AppendFrame(dst []byte, typ uint64, payload []byte) []byte {
	dst = AppendVarint(dst, typ)
	dst = AppendVarint(dst, uint64(len(payload)))
	return append(dst, payload...)
}
