//go:build linux

// Package udp provides the non-blocking UDP socket and epoll-backed
// readiness poller consumed by the probe driver.
package udp

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"stream-prober/internal/transport"
)

type Socket struct {
	fd    int
	local netip.AddrPort
}

// Listen binds a non-blocking UDP socket. Port 0 picks an ephemeral port;
// the resolved address is available via LocalAddr.
func Listen(bind netip.AddrPort) (*Socket, error) {
	family := unix.AF_INET
	if bind.Addr().Is6() {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, toSockaddr(bind)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", bind, err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &Socket{fd: fd, local: fromSockaddr(sa)}, nil
}

func (s *Socket) LocalAddr() netip.AddrPort { return s.local }

func (s *Socket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	for {
		n, sa, err := unix.Recvfrom(s.fd, b, 0)
		switch err {
		case nil:
			return n, fromSockaddr(sa), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, netip.AddrPort{}, transport.ErrWouldBlock
		default:
			return 0, netip.AddrPort{}, fmt.Errorf("recvfrom: %w", err)
		}
	}
}

func (s *Socket) SendTo(b []byte, to netip.AddrPort) (int, error) {
	for {
		err := unix.Sendto(s.fd, b, 0, toSockaddr(to))
		switch err {
		case nil:
			return len(b), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, transport.ErrWouldBlock
		default:
			return 0, fmt.Errorf("sendto %s: %w", to, err)
		}
	}
}

func (s *Socket) Close() error { return unix.Close(s.fd) }

// Poller waits for socket readability with an epoll instance, the loop's
// single suspension point.
type Poller struct {
	epfd int
}

func NewPoller(s *Socket) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(s.fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, s.fd, &ev); err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl: %w", err)
	}
	return &Poller{epfd: epfd}, nil
}

func (p *Poller) Wait(timeout time.Duration, unbounded bool) (bool, error) {
	msec := -1
	if !unbounded {
		if timeout < 0 {
			timeout = 0
		}
		msec = int(timeout.Milliseconds())
		if msec == 0 && timeout > 0 {
			msec = 1
		}
	}
	var events [4]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], msec)
	if err == unix.EINTR {
		// spurious wakeup; the transport's timeout logic is idempotent
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("epoll_wait: %w", err)
	}
	return n > 0, nil
}

func (p *Poller) Close() error { return unix.Close(p.epfd) }

func toSockaddr(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		sa.Addr = ap.Addr().Unmap().As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As16()
	return sa
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	}
	return netip.AddrPort{}
}
