package domain

import (
	"encoding/json"

	"stream-prober/pkg/shared/preview"
)

// Frame is one decoded application-level protocol unit carried on a stream.
type Frame struct {
	Type    uint64
	Payload []byte
}

// FrameMatcher reports whether a frame satisfies an operator-authored
// predicate. A nil matcher matches any frame.
type FrameMatcher func(Frame) bool

// Well-known frame types of the probed protocol.
const (
	FrameData     uint64 = 0x0
	FrameHeaders  uint64 = 0x1
	FrameSettings uint64 = 0x4
	FramePing     uint64 = 0x6
	FrameGoaway   uint64 = 0x7
)

var frameNames = map[uint64]string{
	FrameData:     "data",
	FrameHeaders:  "headers",
	FrameSettings: "settings",
	FramePing:     "ping",
	FrameGoaway:   "goaway",
}

// FrameTypeName returns the symbolic name for a frame type, or "" for
// unknown types.
func FrameTypeName(t uint64) string {
	return frameNames[t]
}

// FrameTypeByName resolves a symbolic frame type name.
func FrameTypeByName(name string) (uint64, bool) {
	for t, n := range frameNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    uint64 `json:"type"`
		Name    string `json:"name,omitempty"`
		Size    int    `json:"size"`
		Preview string `json:"preview,omitempty"`
	}{
		Type:    f.Type,
		Name:    FrameTypeName(f.Type),
		Size:    len(f.Payload),
		Preview: preview.Build(f.Payload, 256),
	})
}
