package domain

// TriggerFrame is one (stream selector, frame matcher) pair of a close
// trigger. seen flips to true at most once and never resets.
type TriggerFrame struct {
	StreamID  uint64
	AnyStream bool
	Match     FrameMatcher
	MatchSrc  string
	seen      bool
}

func (t *TriggerFrame) Seen() bool { return t.seen }

// CloseTrigger forces immediate session closure once every configured frame
// has been observed. The aggregate predicate is monotone: once satisfied it
// stays satisfied.
type CloseTrigger struct {
	frames []*TriggerFrame
}

func NewCloseTrigger(frames []*TriggerFrame) *CloseTrigger {
	return &CloseTrigger{frames: frames}
}

// Observe marks any not-yet-seen trigger entry matched by the logged frame.
// Returns true if at least one entry newly flipped.
func (c *CloseTrigger) Observe(streamID uint64, f Frame) bool {
	if c == nil {
		return false
	}
	flipped := false
	for _, t := range c.frames {
		if t.seen {
			continue
		}
		if !t.AnyStream && t.StreamID != streamID {
			continue
		}
		if t.Match != nil && !t.Match(f) {
			continue
		}
		t.seen = true
		flipped = true
	}
	return flipped
}

// AllSeen reports whether every trigger entry has been observed. A nil or
// empty trigger is never satisfied.
func (c *CloseTrigger) AllSeen() bool {
	if c == nil || len(c.frames) == 0 {
		return false
	}
	for _, t := range c.frames {
		if !t.seen {
			return false
		}
	}
	return true
}
