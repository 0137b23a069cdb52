package domain

// EventKind classifies what happened on a stream.
type EventKind string

const (
	EventFrame    EventKind = "frame"
	EventFinished EventKind = "finished"
	EventReset    EventKind = "reset"
)

// StreamEvent is one observation on a logical stream, produced in arrival
// order. Finished and Reset are terminal for their stream.
type StreamEvent struct {
	StreamID  uint64
	Kind      EventKind
	Frame     Frame  // set when Kind == EventFrame
	ResetCode uint64 // set when Kind == EventReset
}

// EventMatch is an expectation over future stream events, used by waits.
// Match applies only to frame events; nil matches any frame.
type EventMatch struct {
	StreamID uint64
	Kind     EventKind
	Match    FrameMatcher
	MatchSrc string // predicate source for logs and reports
}

// Matches reports whether an observed event satisfies this expectation.
func (m *EventMatch) Matches(ev StreamEvent) bool {
	if m.StreamID != ev.StreamID || m.Kind != ev.Kind {
		return false
	}
	if ev.Kind == EventFrame && m.Match != nil {
		return m.Match(ev.Frame)
	}
	return true
}
