package domain

import "time"

// Action is one scripted operation executed against the session. The set is
// closed: SendFrame, Flush, Wait. Scripts are authored once and consumed via
// a monotonic cursor that never rewinds.
type Action interface {
	isAction()
}

// SendFrame emits one frame on a stream. The peer observes it on the next
// flush.
type SendFrame struct {
	StreamID uint64
	Frame    Frame
	Fin      bool
}

// Flush stops action consumption so the driver flushes pending datagrams.
type Flush struct{}

// Wait blocks the script until its spec is satisfied.
type Wait struct {
	Spec WaitSpec
}

func (SendFrame) isAction() {}
func (Flush) isAction()     {}
func (Wait) isAction()      {}

// WaitSpec is either a fixed duration or an expected stream event.
type WaitSpec interface {
	isWaitSpec()
}

type DurationWait struct {
	Duration time.Duration
}

type EventWait struct {
	Match *EventMatch
}

func (DurationWait) isWaitSpec() {}
func (EventWait) isWaitSpec()    {}

// Script is the full operator input for one session: the ordered action list
// plus an optional close trigger.
type Script struct {
	Name    string
	Actions []Action
	Trigger *CloseTrigger
}
