package probe

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"stream-prober/internal/adapters/decoders/wire"
	"stream-prober/internal/domain"
	"stream-prober/internal/infrastructure/observability"
	"stream-prober/internal/transport"
)

// StreamSource is the slice of the transport the aggregator reads from.
type StreamSource interface {
	Readable() []uint64
	StreamRecv(streamID uint64, b []byte) (int, bool, error)
}

type streamState struct {
	parser   wire.Parser
	frames   []domain.Frame
	terminal bool // Finished or Reset already emitted
	poisoned bool // decode failed; remaining bytes are discarded
}

// Aggregator turns per-stream byte sequences into stream events, keeps the
// per-stream frame logs, and evaluates the close trigger. Decode state is
// independent per stream; a malformed stream never affects its siblings.
type Aggregator struct {
	streams map[uint64]*streamState
	trigger *domain.CloseTrigger
	log     *zerolog.Logger
	metrics *observability.Metrics
	buf     []byte
}

func NewAggregator(trigger *domain.CloseTrigger, log *zerolog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		streams: make(map[uint64]*streamState),
		trigger: trigger,
		log:     log,
		metrics: metrics,
		buf:     make([]byte, 64*1024),
	}
}

// Drain decodes everything currently readable and returns the resulting
// events in arrival order. Bytes arriving after a stream's terminal event
// are discarded.
func (a *Aggregator) Drain(src StreamSource) []domain.StreamEvent {
	var events []domain.StreamEvent
	for _, id := range src.Readable() {
		st := a.stream(id)
		for {
			n, fin, err := src.StreamRecv(id, a.buf)
			if errors.Is(err, transport.ErrDone) {
				break
			}
			var reset *transport.StreamResetError
			if errors.As(err, &reset) {
				if !st.terminal {
					st.terminal = true
					events = append(events, domain.StreamEvent{
						StreamID:  id,
						Kind:      domain.EventReset,
						ResetCode: reset.Code,
					})
					a.log.Info().Uint64("stream", id).Uint64("code", reset.Code).Msg("stream reset by peer")
				}
				break
			}
			if err != nil {
				a.log.Debug().Err(err).Uint64("stream", id).Msg("stream recv failed")
				break
			}

			if st.terminal {
				// protocol anomaly, not fatal
				a.log.Debug().Uint64("stream", id).Int("size", n).Msg("bytes after stream end discarded")
			} else {
				events = a.decode(id, st, a.buf[:n], events)
				if fin && !st.terminal {
					st.terminal = true
					events = append(events, domain.StreamEvent{StreamID: id, Kind: domain.EventFinished})
					if st.parser.Buffered() > 0 {
						a.log.Debug().Uint64("stream", id).Int("pending", st.parser.Buffered()).Msg("stream finished with partial frame")
					}
				}
			}
			if !fin {
				continue
			}
			break
		}
	}
	return events
}

func (a *Aggregator) decode(id uint64, st *streamState, data []byte, events []domain.StreamEvent) []domain.StreamEvent {
	if st.poisoned {
		return events
	}
	st.parser.Feed(data)
	for {
		typ, payload, err := st.parser.Next()
		if errors.Is(err, wire.ErrNeedMore) {
			return events
		}
		if err != nil {
			// scoped to this stream only
			st.poisoned = true
			a.log.Warn().Err(err).Uint64("stream", id).Msg("stream decode failed, discarding rest of stream")
			if a.metrics != nil {
				a.metrics.DecodeErrorsTotal.WithLabelValues("stream").Inc()
			}
			return events
		}
		frame := domain.Frame{Type: typ, Payload: payload}
		st.frames = append(st.frames, frame)
		if a.metrics != nil {
			a.metrics.FramesTotal.WithLabelValues(frameLabel(typ)).Inc()
		}
		a.trigger.Observe(id, frame)
		events = append(events, domain.StreamEvent{StreamID: id, Kind: domain.EventFrame, Frame: frame})
	}
}

// TriggerSatisfied reports whether every close trigger frame has been seen.
// Monotone: once true it stays true.
func (a *Aggregator) TriggerSatisfied() bool {
	return a.trigger.AllSeen()
}

// Logs returns the per-stream frame logs for the terminal summary.
func (a *Aggregator) Logs() map[uint64][]domain.Frame {
	out := make(map[uint64][]domain.Frame, len(a.streams))
	for id, st := range a.streams {
		if len(st.frames) == 0 {
			continue
		}
		out[id] = st.frames
	}
	return out
}

// StreamIDs returns the ids of streams holding logged frames, ordered.
func (a *Aggregator) StreamIDs() []uint64 {
	ids := make([]uint64, 0, len(a.streams))
	for id, st := range a.streams {
		if len(st.frames) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *Aggregator) stream(id uint64) *streamState {
	st, ok := a.streams[id]
	if !ok {
		st = &streamState{}
		a.streams[id] = st
	}
	return st
}

func frameLabel(t uint64) string {
	if name := domain.FrameTypeName(t); name != "" {
		return name
	}
	return "unknown"
}
