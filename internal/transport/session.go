package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"stream-prober/internal/domain"
)

// ErrDone signals that an operation has nothing more to produce right now
// (no more outbound datagrams, no more readable stream bytes).
var ErrDone = errors.New("done")

// ErrWouldBlock is the non-blocking socket's retry signal.
var ErrWouldBlock = errors.New("operation would block")

// StreamResetError is returned by StreamRecv when the peer reset the stream.
type StreamResetError struct {
	Code uint64
}

func (e *StreamResetError) Error() string {
	return fmt.Sprintf("stream reset by peer (code %#x)", e.Code)
}

// Session is the transport collaborator driven by the probe loop. The
// concrete protocol (handshake, loss recovery, crypto) is opaque to the
// driver; it only sees timers, datagrams and streams.
type Session interface {
	// Timeout returns the transport's next internal deadline, if any.
	Timeout() (time.Duration, bool)
	// OnTimeout lets the transport run its expiry logic (idle close, probes)
	// after a pure timeout wakeup.
	OnTimeout()

	// Recv processes one inbound datagram.
	Recv(b []byte, from, to netip.AddrPort) error
	// SendOnPath fills b with the next outbound datagram for a path. ErrDone
	// means nothing more to send on that path.
	SendOnPath(b []byte, local, peer netip.AddrPort) (int, netip.AddrPort, error)
	// PathsIter lists the peer addresses of active paths from local.
	PathsIter(local netip.AddrPort) []netip.AddrPort

	IsClosed() bool
	IsEstablished() bool
	IsInEarlyData() bool
	IsTimedOut() bool
	PeerError() *domain.TransportError
	LocalError() *domain.TransportError
	Close(app bool, code uint64, reason []byte) error

	// SourceIDsNeeded reports how many more local connection ids the
	// transport wants; AddSourceID offers one and may decline.
	SourceIDsNeeded() int
	AddSourceID(id []byte, resetToken [16]byte) error

	StreamSend(streamID uint64, b []byte, fin bool) error
	// Readable lists stream ids with pending inbound data or state.
	Readable() []uint64
	// StreamRecv drains inbound stream bytes. fin reports end-of-stream;
	// ErrDone means nothing pending, StreamResetError a peer reset.
	StreamRecv(streamID uint64, b []byte) (n int, fin bool, err error)

	Stats() domain.Stats
	PathStats() []domain.PathStats
}

// PacketConn is a non-blocking datagram socket. Both directions return
// ErrWouldBlock instead of blocking.
type PacketConn interface {
	RecvFrom(b []byte) (int, netip.AddrPort, error)
	SendTo(b []byte, to netip.AddrPort) (int, error)
	LocalAddr() netip.AddrPort
	Close() error
}

// Poller blocks until the socket becomes readable or the deadline passes.
// This is the driver's single suspension point.
type Poller interface {
	// Wait returns true when the socket is readable. unbounded ignores the
	// timeout and blocks until readiness.
	Wait(timeout time.Duration, unbounded bool) (bool, error)
}
