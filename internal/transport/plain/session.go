// Package plain implements a deliberately small datagram session used as
// the reference transport behind the probe driver: a one-datagram handshake,
// varint-addressed stream chunks, an idle timer and an explicit close
// packet. It carries none of a production transport's loss recovery or
// crypto; the driver only ever sees it through the transport.Session
// interface.
package plain

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"stream-prober/internal/adapters/decoders/wire"
	"stream-prober/internal/domain"
	"stream-prober/internal/transport"
)

// Packet types. Every datagram starts with one of these bytes.
const (
	pktHello  = 'H' // client -> server, opens the session
	pktAccept = 'A' // server -> client, session established
	pktStream = 'S' // varint stream id, flags byte, payload
	pktReset  = 'R' // varint stream id, varint error code
	pktClose  = 'C' // app flag byte, varint code, reason
)

const flagFin = 0x01

// chunk header worst case: type byte + 8-byte varint id + flags byte
const chunkOverhead = 10

type Options struct {
	IdleTimeout     time.Duration
	MaxDatagramSize int
	MaxSourceIDs    int
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

type recvStream struct {
	buf            []byte
	fin            bool
	finDelivered   bool
	reset          *uint64
	resetDelivered bool
}

// Session is the client half of the plain profile.
type Session struct {
	local, peer netip.AddrPort

	established bool
	closed      bool
	timedOut    bool
	peerErr     *domain.TransportError
	localErr    *domain.TransportError

	idle     time.Duration
	deadline time.Time

	out     [][]byte
	streams map[uint64]*recvStream
	order   []uint64

	sourceIDs    [][]byte
	maxSourceIDs int

	stats domain.Stats
	path  domain.PathStats

	maxDatagram int
	now         func() time.Time
}

// Dial prepares a client session toward peer. The opening HELLO is queued
// for the driver's initial flight; establishment happens when the peer's
// ACCEPT arrives.
func Dial(local, peer netip.AddrPort, opts Options) (*Session, error) {
	if !peer.IsValid() {
		return nil, errors.New("invalid peer address")
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Second
	}
	if opts.MaxDatagramSize <= 0 {
		opts.MaxDatagramSize = 1350
	}
	if opts.MaxSourceIDs <= 0 {
		opts.MaxSourceIDs = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		local:        local,
		peer:         peer,
		idle:         opts.IdleTimeout,
		streams:      make(map[uint64]*recvStream),
		maxSourceIDs: opts.MaxSourceIDs,
		maxDatagram:  opts.MaxDatagramSize,
		now:          opts.Now,
		path:         domain.PathStats{Local: local.String(), Peer: peer.String()},
	}
	s.deadline = s.now().Add(s.idle)
	s.out = append(s.out, []byte{pktHello})
	return s, nil
}

func (s *Session) Timeout() (time.Duration, bool) {
	if s.closed {
		return 0, false
	}
	d := s.deadline.Sub(s.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (s *Session) OnTimeout() {
	if s.closed {
		return
	}
	if !s.now().Before(s.deadline) {
		s.closed = true
		s.timedOut = true
	}
}

func (s *Session) Recv(b []byte, from, to netip.AddrPort) error {
	if s.closed {
		return nil
	}
	if len(b) == 0 {
		return errors.New("empty datagram")
	}
	s.stats.PacketsRecv++
	s.stats.BytesRecv += uint64(len(b))
	s.path.PacketsRecv++
	s.path.BytesRecv += uint64(len(b))
	s.deadline = s.now().Add(s.idle)

	switch b[0] {
	case pktAccept:
		s.established = true
		return nil
	case pktHello:
		// peer-side packet, ignore
		return nil
	case pktStream:
		return s.recvStreamChunk(b[1:])
	case pktReset:
		return s.recvReset(b[1:])
	case pktClose:
		return s.recvClose(b[1:])
	default:
		return fmt.Errorf("unknown packet type %#x", b[0])
	}
}

func (s *Session) recvStreamChunk(b []byte) error {
	id, n := wire.ReadVarint(b)
	if n == 0 || len(b) < n+1 {
		return errors.New("short stream packet")
	}
	flags := b[n]
	payload := b[n+1:]
	st := s.stream(id)
	if st.fin || st.reset != nil {
		// bytes after stream end are dropped silently
		return nil
	}
	st.buf = append(st.buf, payload...)
	if flags&flagFin != 0 {
		st.fin = true
	}
	return nil
}

func (s *Session) recvReset(b []byte) error {
	id, n := wire.ReadVarint(b)
	if n == 0 {
		return errors.New("short reset packet")
	}
	code, m := wire.ReadVarint(b[n:])
	if m == 0 {
		return errors.New("short reset packet")
	}
	st := s.stream(id)
	if st.reset == nil && !st.fin {
		st.reset = &code
	}
	return nil
}

func (s *Session) recvClose(b []byte) error {
	if len(b) < 1 {
		return errors.New("short close packet")
	}
	app := b[0] == 1
	code, n := wire.ReadVarint(b[1:])
	if n == 0 {
		return errors.New("short close packet")
	}
	s.peerErr = &domain.TransportError{IsApp: app, Code: code, Reason: string(b[1+n:])}
	s.closed = true
	return nil
}

func (s *Session) IsClosed() bool                     { return s.closed }
func (s *Session) IsEstablished() bool                { return s.established }
func (s *Session) IsInEarlyData() bool                { return false }
func (s *Session) IsTimedOut() bool                   { return s.timedOut }
func (s *Session) PeerError() *domain.TransportError  { return s.peerErr }
func (s *Session) LocalError() *domain.TransportError { return s.localErr }

func (s *Session) Close(app bool, code uint64, reason []byte) error {
	if s.closed {
		return transport.ErrDone
	}
	s.localErr = &domain.TransportError{IsApp: app, Code: code, Reason: string(reason)}
	pkt := []byte{pktClose, 0}
	if app {
		pkt[1] = 1
	}
	pkt = wire.AppendVarint(pkt, code)
	pkt = append(pkt, reason...)
	s.out = append(s.out, pkt)
	s.closed = true
	return nil
}

func (s *Session) SendOnPath(b []byte, local, peer netip.AddrPort) (int, netip.AddrPort, error) {
	if peer != s.peer {
		return 0, netip.AddrPort{}, transport.ErrDone
	}
	if len(s.out) == 0 {
		return 0, netip.AddrPort{}, transport.ErrDone
	}
	pkt := s.out[0]
	if len(pkt) > len(b) {
		return 0, netip.AddrPort{}, fmt.Errorf("datagram of %d bytes exceeds buffer", len(pkt))
	}
	s.out = s.out[1:]
	n := copy(b, pkt)
	s.stats.PacketsSent++
	s.stats.BytesSent += uint64(n)
	s.path.PacketsSent++
	s.path.BytesSent += uint64(n)
	return n, s.peer, nil
}

func (s *Session) PathsIter(local netip.AddrPort) []netip.AddrPort {
	return []netip.AddrPort{s.peer}
}

func (s *Session) SourceIDsNeeded() int {
	if s.closed {
		return 0
	}
	return s.maxSourceIDs - len(s.sourceIDs)
}

func (s *Session) AddSourceID(id []byte, resetToken [16]byte) error {
	if len(id) == 0 {
		return errors.New("empty source id")
	}
	if len(s.sourceIDs) >= s.maxSourceIDs {
		return errors.New("source id pool full")
	}
	s.sourceIDs = append(s.sourceIDs, append([]byte(nil), id...))
	return nil
}

func (s *Session) StreamSend(streamID uint64, b []byte, fin bool) error {
	if s.closed {
		return errors.New("session closed")
	}
	maxChunk := s.maxDatagram - chunkOverhead
	for first := true; first || len(b) > 0; first = false {
		chunk := b
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		b = b[len(chunk):]
		flags := byte(0)
		if fin && len(b) == 0 {
			flags = flagFin
		}
		pkt := wire.AppendVarint([]byte{pktStream}, streamID)
		pkt = append(pkt, flags)
		pkt = append(pkt, chunk...)
		s.out = append(s.out, pkt)
	}
	return nil
}

func (s *Session) Readable() []uint64 {
	var ids []uint64
	for _, id := range s.order {
		st := s.streams[id]
		if len(st.buf) > 0 ||
			(st.fin && !st.finDelivered) ||
			(st.reset != nil && !st.resetDelivered) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) StreamRecv(streamID uint64, b []byte) (int, bool, error) {
	st, ok := s.streams[streamID]
	if !ok {
		return 0, false, transport.ErrDone
	}
	if st.reset != nil {
		if st.resetDelivered {
			return 0, false, transport.ErrDone
		}
		st.resetDelivered = true
		st.buf = nil
		return 0, false, &transport.StreamResetError{Code: *st.reset}
	}
	if len(st.buf) > 0 {
		n := copy(b, st.buf)
		st.buf = st.buf[n:]
		fin := st.fin && len(st.buf) == 0
		if fin {
			st.finDelivered = true
		}
		return n, fin, nil
	}
	if st.fin && !st.finDelivered {
		st.finDelivered = true
		return 0, true, nil
	}
	return 0, false, transport.ErrDone
}

func (s *Session) Stats() domain.Stats { return s.stats }

func (s *Session) PathStats() []domain.PathStats {
	return []domain.PathStats{s.path}
}

func (s *Session) stream(id uint64) *recvStream {
	st, ok := s.streams[id]
	if !ok {
		st = &recvStream{}
		s.streams[id] = st
		s.order = append(s.order, id)
	}
	return st
}
