package probe

import (
	"testing"

	"github.com/rs/zerolog"

	"stream-prober/internal/adapters/decoders/wire"
	"stream-prober/internal/domain"
	"stream-prober/internal/transport"
)

type chunk struct {
	data  []byte
	fin   bool
	reset *uint64
}

// fakeStreams queues per-stream read results in arrival order.
type fakeStreams struct {
	order  []uint64
	chunks map[uint64][]chunk
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{chunks: make(map[uint64][]chunk)}
}

func (f *fakeStreams) push(id uint64, c chunk) {
	if _, ok := f.chunks[id]; !ok {
		f.order = append(f.order, id)
	}
	f.chunks[id] = append(f.chunks[id], c)
}

func (f *fakeStreams) Readable() []uint64 {
	var ids []uint64
	for _, id := range f.order {
		if len(f.chunks[id]) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeStreams) StreamRecv(id uint64, b []byte) (int, bool, error) {
	pending := f.chunks[id]
	if len(pending) == 0 {
		return 0, false, transport.ErrDone
	}
	c := pending[0]
	f.chunks[id] = pending[1:]
	if c.reset != nil {
		return 0, false, &transport.StreamResetError{Code: *c.reset}
	}
	n := copy(b, c.data)
	return n, c.fin, nil
}

func newTestAggregator(trigger *domain.CloseTrigger) *Aggregator {
	log := zerolog.Nop()
	return NewAggregator(trigger, &log, nil)
}

func encodeFrames(frames ...domain.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = wire.AppendFrame(out, f.Type, f.Payload)
	}
	return out
}

func TestAggregatorYieldsAllFramesInOrder(t *testing.T) {
	src := newFakeStreams()
	frames := []domain.Frame{
		{Type: domain.FrameSettings, Payload: []byte{0x01}},
		{Type: domain.FrameHeaders, Payload: []byte("abc")},
		{Type: domain.FrameData, Payload: []byte("body")},
	}
	src.push(0, chunk{data: encodeFrames(frames...)})

	a := newTestAggregator(nil)
	events := a.Drain(src)
	if len(events) != len(frames) {
		t.Fatalf("expected %d events, got %d", len(frames), len(events))
	}
	for i, ev := range events {
		if ev.Kind != domain.EventFrame || ev.StreamID != 0 || ev.Frame.Type != frames[i].Type {
			t.Fatalf("event %d: %+v", i, ev)
		}
	}
	if got := a.Logs()[0]; len(got) != len(frames) {
		t.Fatalf("frame log should hold %d frames, has %d", len(frames), len(got))
	}
}

func TestAggregatorCarriesPartialFrameAcrossDrains(t *testing.T) {
	encoded := encodeFrames(domain.Frame{Type: domain.FrameHeaders, Payload: []byte("split")})
	src := newFakeStreams()
	src.push(4, chunk{data: encoded[:3]})

	a := newTestAggregator(nil)
	if events := a.Drain(src); len(events) != 0 {
		t.Fatalf("partial frame must not produce events, got %d", len(events))
	}
	src.push(4, chunk{data: encoded[3:]})
	events := a.Drain(src)
	if len(events) != 1 || events[0].Frame.Type != domain.FrameHeaders {
		t.Fatalf("completed frame expected, got %+v", events)
	}
}

func TestAggregatorFinishedEmittedExactlyOnce(t *testing.T) {
	src := newFakeStreams()
	src.push(4, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData, Payload: []byte("x")}), fin: true})

	a := newTestAggregator(nil)
	events := a.Drain(src)
	if len(events) != 2 || events[0].Kind != domain.EventFrame || events[1].Kind != domain.EventFinished {
		t.Fatalf("expected frame then finished, got %+v", events)
	}

	// bytes after end-of-stream are an anomaly, dropped without events
	src.push(4, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData, Payload: []byte("late")})})
	if events := a.Drain(src); len(events) != 0 {
		t.Fatalf("post-finished bytes must not produce events, got %+v", events)
	}
	if got := a.Logs()[4]; len(got) != 1 {
		t.Fatalf("late bytes must not reach the frame log, has %d frames", len(got))
	}
}

func TestAggregatorResetIsTerminal(t *testing.T) {
	code := uint64(0x77)
	src := newFakeStreams()
	src.push(8, chunk{reset: &code})

	a := newTestAggregator(nil)
	events := a.Drain(src)
	if len(events) != 1 || events[0].Kind != domain.EventReset || events[0].ResetCode != code {
		t.Fatalf("expected reset event, got %+v", events)
	}
	src.push(8, chunk{reset: &code})
	if events := a.Drain(src); len(events) != 0 {
		t.Fatalf("reset must be emitted once, got %+v", events)
	}
}

func TestAggregatorDecodeErrorIsScopedToOneStream(t *testing.T) {
	// stream 2 carries an impossible frame length; stream 3 is well-formed
	bad := wire.AppendVarint(nil, domain.FrameData)
	bad = wire.AppendVarint(bad, wire.MaxFramePayload+1)

	src := newFakeStreams()
	src.push(2, chunk{data: bad})
	src.push(3, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameHeaders, Payload: []byte("ok")})})

	a := newTestAggregator(nil)
	events := a.Drain(src)
	if len(events) != 1 || events[0].StreamID != 3 || events[0].Kind != domain.EventFrame {
		t.Fatalf("only stream 3 should produce an event, got %+v", events)
	}

	// the poisoned stream stays silent, the healthy one keeps decoding
	src.push(2, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData})})
	src.push(3, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData})})
	events = a.Drain(src)
	if len(events) != 1 || events[0].StreamID != 3 {
		t.Fatalf("poisoned stream must stay silent, got %+v", events)
	}
}

func TestAggregatorCloseTriggerIsMonotone(t *testing.T) {
	trigger := domain.NewCloseTrigger([]*domain.TriggerFrame{
		{StreamID: 0, Match: func(f domain.Frame) bool { return f.Type == domain.FrameSettings }},
	})
	a := newTestAggregator(trigger)

	src := newFakeStreams()
	src.push(0, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData})})
	a.Drain(src)
	if a.TriggerSatisfied() {
		t.Fatalf("trigger must not fire before the settings frame")
	}

	src.push(0, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameSettings})})
	a.Drain(src)
	if !a.TriggerSatisfied() {
		t.Fatalf("trigger should fire after the settings frame")
	}

	// unrelated frames keep arriving; the predicate never flips back
	src.push(0, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameData})})
	a.Drain(src)
	if !a.TriggerSatisfied() {
		t.Fatalf("trigger must stay satisfied")
	}
}

func TestAggregatorMultiPairTriggerNeedsAllPairs(t *testing.T) {
	trigger := domain.NewCloseTrigger([]*domain.TriggerFrame{
		{StreamID: 0, Match: func(f domain.Frame) bool { return f.Type == domain.FrameSettings }},
		{AnyStream: true, Match: func(f domain.Frame) bool { return f.Type == domain.FrameGoaway }},
	})
	a := newTestAggregator(trigger)

	src := newFakeStreams()
	src.push(0, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameSettings})})
	a.Drain(src)
	if a.TriggerSatisfied() {
		t.Fatalf("one of two pairs seen, trigger must not fire")
	}
	src.push(12, chunk{data: encodeFrames(domain.Frame{Type: domain.FrameGoaway})})
	a.Drain(src)
	if !a.TriggerSatisfied() {
		t.Fatalf("both pairs seen, trigger should fire")
	}
}
