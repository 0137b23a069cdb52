package probe

import (
	"time"

	"github.com/rs/zerolog"

	"stream-prober/internal/adapters/decoders/wire"
	"stream-prober/internal/domain"
)

// FrameSender is the slice of the transport the script engine writes to.
type FrameSender interface {
	StreamSend(streamID uint64, b []byte, fin bool) error
}

// Engine consumes the scripted action cursor in order, never skipping or
// reordering. Exactly one blocking mode can be armed at a time: either the
// duration timer or a non-empty wait tracker, never both.
type Engine struct {
	actions []domain.Action
	next    int

	waitArmed     bool
	waitStart     time.Time
	waitRemaining time.Duration

	sender  FrameSender
	waiting *WaitTracker
	log     *zerolog.Logger
	now     func() time.Time
}

func NewEngine(actions []domain.Action, sender FrameSender, waiting *WaitTracker, log *zerolog.Logger) *Engine {
	return &Engine{
		actions: actions,
		sender:  sender,
		waiting: waiting,
		log:     log,
		now:     time.Now,
	}
}

// Exhausted reports whether the cursor has consumed every action.
func (e *Engine) Exhausted() bool { return e.next >= len(e.actions) }

// PendingWait returns the remaining duration of the armed script wait, if
// any. It re-anchors the wait to now so elapsed time is accounted exactly
// once per driver iteration: after a wakeup bounded by the transport timer
// the remainder shrinks by the slept amount instead of resetting.
func (e *Engine) PendingWait() (time.Duration, bool) {
	if !e.waitArmed {
		return 0, false
	}
	now := e.now()
	elapsed := now.Sub(e.waitStart)
	e.waitRemaining -= elapsed
	if e.waitRemaining < 0 {
		e.waitRemaining = 0
	}
	e.waitStart = now
	return e.waitRemaining, true
}

// Run advances the cursor. It is a no-op while a wait condition is
// outstanding or the duration timer has not elapsed; otherwise it executes
// actions until one of them blocks, requests a flush, or the script ends.
func (e *Engine) Run() {
	if !e.waiting.Empty() {
		e.log.Debug().Int("outstanding", e.waiting.Len()).Msg("script blocked on response waits")
		return
	}
	if e.waitArmed {
		if e.now().Sub(e.waitStart) < e.waitRemaining {
			return
		}
		e.waitArmed = false
	}

	for e.next < len(e.actions) {
		act := e.actions[e.next]
		e.next++

		switch a := act.(type) {
		case domain.SendFrame:
			e.sendFrame(a)
		case domain.Flush:
			return
		case domain.Wait:
			switch w := a.Spec.(type) {
			case domain.DurationWait:
				e.waitArmed = true
				e.waitStart = e.now()
				e.waitRemaining = w.Duration
				e.log.Info().Dur("wait", w.Duration).Msg("pausing script before next action")
				return
			case domain.EventWait:
				e.waiting.Add(w.Match)
				e.log.Info().
					Uint64("stream", w.Match.StreamID).
					Str("kind", string(w.Match.Kind)).
					Msg("waiting for stream event before next action")
				return
			}
		}
	}
}

func (e *Engine) sendFrame(a domain.SendFrame) {
	buf := wire.AppendFrame(nil, a.Frame.Type, a.Frame.Payload)
	if err := e.sender.StreamSend(a.StreamID, buf, a.Fin); err != nil {
		e.log.Error().Err(err).
			Uint64("stream", a.StreamID).
			Uint64("type", a.Frame.Type).
			Msg("stream send failed")
		return
	}
	e.log.Debug().
		Uint64("stream", a.StreamID).
		Uint64("type", a.Frame.Type).
		Int("size", len(a.Frame.Payload)).
		Bool("fin", a.Fin).
		Msg("frame queued")
}
