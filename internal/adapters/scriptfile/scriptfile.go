package scriptfile

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stream-prober/internal/adapters/match"
	"stream-prober/internal/domain"
)

// YAML script shape:
//
//	name: settings probe
//	close_trigger:
//	  - stream: 0
//	    match: 'name == "settings"'
//	actions:
//	  - send_frame: {stream: 0, type: settings, payload_hex: "0104", fin: false}
//	  - flush: {}
//	  - wait: {duration_ms: 200}
//	  - wait: {stream_event: {stream: 4, kind: finished}}

type fileScript struct {
	Name         string        `yaml:"name"`
	CloseTrigger []fileTrigger `yaml:"close_trigger"`
	Actions      []fileAction  `yaml:"actions"`
}

type fileTrigger struct {
	Stream    *uint64 `yaml:"stream"`
	AnyStream bool    `yaml:"any_stream"`
	Match     string  `yaml:"match"`
}

type fileAction struct {
	SendFrame *fileSendFrame `yaml:"send_frame"`
	Flush     *struct{}      `yaml:"flush"`
	Wait      *fileWait      `yaml:"wait"`
}

type fileSendFrame struct {
	Stream     uint64 `yaml:"stream"`
	Type       string `yaml:"type"`
	Payload    string `yaml:"payload"`
	PayloadHex string `yaml:"payload_hex"`
	Fin        bool   `yaml:"fin"`
}

type fileWait struct {
	DurationMs  *int64           `yaml:"duration_ms"`
	StreamEvent *fileStreamEvent `yaml:"stream_event"`
}

type fileStreamEvent struct {
	Stream uint64 `yaml:"stream"`
	Kind   string `yaml:"kind"`
	Match  string `yaml:"match"`
}

// Load reads and validates one YAML script file.
func Load(path string) (*domain.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw fileScript
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	script := &domain.Script{Name: raw.Name}
	if script.Name == "" {
		script.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if len(raw.CloseTrigger) > 0 {
		frames := make([]*domain.TriggerFrame, 0, len(raw.CloseTrigger))
		for i, t := range raw.CloseTrigger {
			tf, err := buildTrigger(t)
			if err != nil {
				return nil, fmt.Errorf("close_trigger %d: %w", i, err)
			}
			frames = append(frames, tf)
		}
		script.Trigger = domain.NewCloseTrigger(frames)
	}

	for i, a := range raw.Actions {
		action, err := buildAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		script.Actions = append(script.Actions, action)
	}
	if len(script.Actions) == 0 {
		return nil, fmt.Errorf("%s: script has no actions", path)
	}
	return script, nil
}

func buildTrigger(t fileTrigger) (*domain.TriggerFrame, error) {
	if t.Stream == nil && !t.AnyStream {
		return nil, fmt.Errorf("needs stream or any_stream")
	}
	matcher, err := match.Compile(t.Match)
	if err != nil {
		return nil, err
	}
	tf := &domain.TriggerFrame{AnyStream: t.AnyStream, Match: matcher, MatchSrc: t.Match}
	if t.Stream != nil {
		tf.StreamID = *t.Stream
	}
	return tf, nil
}

func buildAction(a fileAction) (domain.Action, error) {
	set := 0
	if a.SendFrame != nil {
		set++
	}
	if a.Flush != nil {
		set++
	}
	if a.Wait != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of send_frame, flush, wait required")
	}

	switch {
	case a.SendFrame != nil:
		return buildSendFrame(*a.SendFrame)
	case a.Flush != nil:
		return domain.Flush{}, nil
	default:
		return buildWait(*a.Wait)
	}
}

func buildSendFrame(s fileSendFrame) (domain.Action, error) {
	typ, err := parseFrameType(s.Type)
	if err != nil {
		return nil, err
	}
	if s.Payload != "" && s.PayloadHex != "" {
		return nil, fmt.Errorf("payload and payload_hex are mutually exclusive")
	}
	payload := []byte(s.Payload)
	if s.PayloadHex != "" {
		payload, err = hex.DecodeString(s.PayloadHex)
		if err != nil {
			return nil, fmt.Errorf("payload_hex: %w", err)
		}
	}
	return domain.SendFrame{
		StreamID: s.Stream,
		Frame:    domain.Frame{Type: typ, Payload: payload},
		Fin:      s.Fin,
	}, nil
}

func buildWait(w fileWait) (domain.Action, error) {
	if (w.DurationMs == nil) == (w.StreamEvent == nil) {
		return nil, fmt.Errorf("wait needs exactly one of duration_ms, stream_event")
	}
	if w.DurationMs != nil {
		if *w.DurationMs <= 0 {
			return nil, fmt.Errorf("duration_ms must be positive")
		}
		return domain.Wait{Spec: domain.DurationWait{Duration: time.Duration(*w.DurationMs) * time.Millisecond}}, nil
	}

	ev := w.StreamEvent
	kind, err := parseEventKind(ev.Kind)
	if err != nil {
		return nil, err
	}
	if ev.Match != "" && kind != domain.EventFrame {
		return nil, fmt.Errorf("match only applies to frame events")
	}
	matcher, err := match.Compile(ev.Match)
	if err != nil {
		return nil, err
	}
	return domain.Wait{Spec: domain.EventWait{Match: &domain.EventMatch{
		StreamID: ev.Stream,
		Kind:     kind,
		Match:    matcher,
		MatchSrc: ev.Match,
	}}}, nil
}

func parseFrameType(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("frame type required")
	}
	if t, ok := domain.FrameTypeByName(s); ok {
		return t, nil
	}
	t, err := strconv.ParseUint(s, 0, 62)
	if err != nil {
		return 0, fmt.Errorf("unknown frame type %q", s)
	}
	return t, nil
}

func parseEventKind(s string) (domain.EventKind, error) {
	switch domain.EventKind(strings.TrimSpace(s)) {
	case domain.EventFrame:
		return domain.EventFrame, nil
	case domain.EventFinished:
		return domain.EventFinished, nil
	case domain.EventReset:
		return domain.EventReset, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}
