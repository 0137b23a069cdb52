package probe

import (
	"errors"
	"math/rand"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"stream-prober/internal/domain"
	"stream-prober/internal/infrastructure/monitor"
	"stream-prober/internal/infrastructure/observability"
	"stream-prober/internal/transport"
	"stream-prober/pkg/shared/id"
)

const (
	// internalErrorCode is used for abnormal local closes after I/O failures.
	internalErrorCode = 0x1
	// triggerCloseCode is the application close code used when the close
	// trigger is satisfied.
	triggerCloseCode = 0x100

	defaultMaxDatagram = 1350
	recvBufSize        = 65535
)

// Driver runs one session from handshake through script completion and
// teardown. It is the only component touching the transport and socket
// collaborators, and the loop is strictly single-threaded: the bounded
// readiness wait is the sole suspension point per iteration.
type Driver struct {
	Sess   transport.Session
	Conn   transport.PacketConn
	Poller transport.Poller

	Log     *zerolog.Logger
	Metrics *observability.Metrics
	Hub     monitor.Broadcaster
	Rand    *rand.Rand

	// Now is injectable for tests; defaults to time.Now.
	Now         func() time.Time
	MaxDatagram int
	SessionID   string
}

// Run drives the session until the script is exhausted and the transport
// closes naturally, the close trigger fires, or a fatal error occurs.
func (d *Driver) Run(script *domain.Script) (*domain.ConnectionSummary, error) {
	if d.Log == nil {
		nop := zerolog.Nop()
		d.Log = &nop
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if d.MaxDatagram == 0 {
		d.MaxDatagram = defaultMaxDatagram
	}
	if d.SessionID == "" {
		d.SessionID = id.New()
	}

	buf := make([]byte, recvBufSize)
	out := make([]byte, d.MaxDatagram)
	local := d.Conn.LocalAddr()

	waiting := &WaitTracker{}
	engine := NewEngine(script.Actions, d.Sess, waiting, d.Log)
	engine.now = d.Now
	aggr := NewAggregator(script.Trigger, d.Log, d.Metrics)

	if err := d.initialFlight(out, local); err != nil {
		return nil, err
	}

	start := d.Now()
	active := false
	closeRequested := false

	for {
		sleep, unbounded := d.computeSleep(engine)
		d.Log.Debug().Dur("sleep", sleep).Bool("unbounded", unbounded).Msg("waiting for readiness")

		ready, err := d.Poller.Wait(sleep, unbounded)
		if err != nil {
			_ = d.Sess.Close(false, internalErrorCode, []byte("poll failed"))
			return nil, &domain.IOError{Op: "poll", Err: err}
		}

		// A pure timeout wakeup still has to run the transport's own expiry
		// logic (idle close, loss probes).
		if !ready {
			d.Log.Debug().Msg("timed out")
			d.Sess.OnTimeout()
		} else if err := d.drainInbound(buf, local); err != nil {
			return nil, err
		}

		if stop, err := d.checkClosed(start); stop || err != nil {
			if err != nil {
				return nil, err
			}
			break
		}

		if (d.Sess.IsEstablished() || d.Sess.IsInEarlyData()) && !active {
			active = true
			d.Log.Info().Str("session", d.SessionID).Msg("session active, script enabled")
			d.publish(monitor.Event{Type: "session_started", Session: d.SessionID})
		}

		if active {
			engine.Run()

			waitCleared := false
			for _, ev := range aggr.Drain(d.Sess) {
				if ev.Kind == domain.EventFinished {
					if n := waiting.ClearStream(ev.StreamID); n > 0 && d.Metrics != nil {
						d.Metrics.WaitsCleared.Add(float64(n))
					}
				} else {
					if waiting.Remove(ev) && d.Metrics != nil {
						d.Metrics.WaitsCleared.Inc()
					}
				}
				waitCleared = true
				d.publishEvent(ev)
			}

			if aggr.TriggerSatisfied() && !closeRequested {
				closeRequested = true
				d.Log.Info().Str("session", d.SessionID).Msg("all close trigger frames seen, closing")
				if d.Metrics != nil {
					d.Metrics.CloseTriggers.Inc()
				}
				d.publish(monitor.Event{Type: "close_trigger", Session: d.SessionID})
				_ = d.Sess.Close(true, triggerCloseCode, []byte("close trigger satisfied"))
			}

			// Re-enter the script in the same iteration so chained actions
			// unblocked by the decoded events fire without an extra poll.
			if waitCleared {
				engine.Run()
			}
		}

		// Offer local connection ids until the transport declines.
		for d.Sess.SourceIDsNeeded() > 0 {
			scid, token := NewSourceID(d.Rand)
			if err := d.Sess.AddSourceID(scid, token); err != nil {
				break
			}
		}

		if err := d.flush(out, local); err != nil {
			return nil, err
		}

		if stop, err := d.checkClosed(start); stop || err != nil {
			if err != nil {
				return nil, err
			}
			break
		}
	}

	summary := d.summary(aggr)
	d.Log.Info().
		Str("session", d.SessionID).
		Bool("timedOut", summary.Close.TimedOut).
		Interface("stats", summary.Stats).
		Msg("session closed")
	d.publish(monitor.Event{Type: "session_ended", Session: d.SessionID})
	return summary, nil
}

// computeSleep arbitrates between the script wait and the transport timer,
// picking the tighter bound. Absent both, the wait is unbounded. The script
// wait's remainder is preserved across iterations by Engine.PendingWait.
func (d *Driver) computeSleep(engine *Engine) (time.Duration, bool) {
	wait, waitActive := engine.PendingWait()
	tmo, tmoActive := d.Sess.Timeout()
	switch {
	case waitActive && tmoActive:
		if tmo < wait {
			return tmo, false
		}
		return wait, false
	case tmoActive:
		return tmo, false
	case waitActive:
		return wait, false
	}
	return 0, true
}

// initialFlight sends the first outbound datagram before the loop starts,
// retrying on would-block.
func (d *Driver) initialFlight(out []byte, local netip.AddrPort) error {
	peers := d.Sess.PathsIter(local)
	if len(peers) == 0 {
		return &domain.SetupError{Err: errors.New("session has no path")}
	}
	n, to, err := d.Sess.SendOnPath(out, local, peers[0])
	if errors.Is(err, transport.ErrDone) {
		return nil
	}
	if err != nil {
		return &domain.SetupError{Err: err}
	}
	for {
		if _, err := d.Conn.SendTo(out[:n], to); err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				d.Log.Debug().Str("to", to.String()).Msg("initial send would block")
				continue
			}
			return &domain.IOError{Op: "send", Err: err}
		}
		break
	}
	if d.Metrics != nil {
		d.Metrics.DatagramsTotal.WithLabelValues("out").Inc()
	}
	return nil
}

// drainInbound reads every ready datagram and feeds it to the transport. A
// per-datagram decode failure is logged and skipped.
func (d *Driver) drainInbound(buf []byte, local netip.AddrPort) error {
	for {
		n, from, err := d.Conn.RecvFrom(buf)
		if errors.Is(err, transport.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			_ = d.Sess.Close(false, internalErrorCode, []byte("recv failed"))
			return &domain.IOError{Op: "recv", Err: err}
		}
		if d.Metrics != nil {
			d.Metrics.DatagramsTotal.WithLabelValues("in").Inc()
		}
		if err := d.Sess.Recv(buf[:n], from, local); err != nil {
			d.Log.Debug().Err(err).Str("from", from.String()).Msg("datagram dropped")
			if d.Metrics != nil {
				d.Metrics.DecodeErrorsTotal.WithLabelValues("datagram").Inc()
			}
			continue
		}
	}
}

// flush drains outbound datagrams for every known path. Would-block stops
// one path only; a hard socket failure aborts the session.
func (d *Driver) flush(out []byte, local netip.AddrPort) error {
	for _, peer := range d.Sess.PathsIter(local) {
		for {
			n, to, err := d.Sess.SendOnPath(out, local, peer)
			if errors.Is(err, transport.ErrDone) {
				break
			}
			if err != nil {
				d.Log.Error().Err(err).
					Str("local", local.String()).
					Str("peer", peer.String()).
					Msg("transport send failed")
				_ = d.Sess.Close(false, internalErrorCode, []byte("fail"))
				break
			}
			if _, err := d.Conn.SendTo(out[:n], to); err != nil {
				if errors.Is(err, transport.ErrWouldBlock) {
					d.Log.Debug().
						Str("local", local.String()).
						Str("to", to.String()).
						Msg("send would block")
					break
				}
				_ = d.Sess.Close(false, internalErrorCode, []byte("send failed"))
				return &domain.IOError{Op: "send", Err: err}
			}
			if d.Metrics != nil {
				d.Metrics.DatagramsTotal.WithLabelValues("out").Inc()
			}
		}
	}
	return nil
}

// checkClosed reports whether the loop must stop, distinguishing a natural
// close from a handshake failure.
func (d *Driver) checkClosed(start time.Time) (bool, error) {
	if !d.Sess.IsClosed() {
		return false, nil
	}
	if !d.Sess.IsEstablished() {
		d.Log.Info().
			Str("session", d.SessionID).
			Dur("after", d.Now().Sub(start)).
			Msg("session closed before handshake completed")
		return true, domain.ErrHandshakeFail
	}
	return true, nil
}

func (d *Driver) summary(aggr *Aggregator) *domain.ConnectionSummary {
	stats := d.Sess.Stats()
	return &domain.ConnectionSummary{
		Streams:   aggr.Logs(),
		Stats:     &stats,
		PathStats: d.Sess.PathStats(),
		Close: domain.CloseDetails{
			PeerError:  d.Sess.PeerError(),
			LocalError: d.Sess.LocalError(),
			TimedOut:   d.Sess.IsTimedOut(),
		},
	}
}

func (d *Driver) publish(ev monitor.Event) {
	if d.Hub != nil {
		d.Hub.Broadcast(ev)
	}
}

func (d *Driver) publishEvent(ev domain.StreamEvent) {
	switch ev.Kind {
	case domain.EventFrame:
		d.publish(monitor.Event{Type: "frame_decoded", Session: d.SessionID, Stream: ev.StreamID, Ref: frameLabel(ev.Frame.Type)})
	case domain.EventFinished:
		d.publish(monitor.Event{Type: "stream_finished", Session: d.SessionID, Stream: ev.StreamID})
	case domain.EventReset:
		d.publish(monitor.Event{Type: "stream_reset", Session: d.SessionID, Stream: ev.StreamID})
	}
}
