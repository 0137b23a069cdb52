package domain

import "time"

// TransportError is a connection-level close error from either side.
type TransportError struct {
	IsApp  bool   `json:"isApp"`
	Code   uint64 `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// CloseDetails records how the session ended.
type CloseDetails struct {
	PeerError  *TransportError `json:"peerError,omitempty"`
	LocalError *TransportError `json:"localError,omitempty"`
	TimedOut   bool            `json:"timedOut"`
}

// Stats are connection-wide transport counters.
type Stats struct {
	PacketsRecv uint64 `json:"packetsRecv"`
	PacketsSent uint64 `json:"packetsSent"`
	BytesRecv   uint64 `json:"bytesRecv"`
	BytesSent   uint64 `json:"bytesSent"`
}

// PathStats are per network path counters.
type PathStats struct {
	Local       string `json:"local"`
	Peer        string `json:"peer"`
	PacketsSent uint64 `json:"packetsSent"`
	PacketsRecv uint64 `json:"packetsRecv"`
	BytesSent   uint64 `json:"bytesSent"`
	BytesRecv   uint64 `json:"bytesRecv"`
}

// ConnectionSummary is the immutable terminal report of one session.
type ConnectionSummary struct {
	Streams   map[uint64][]Frame `json:"streams"`
	Stats     *Stats             `json:"stats,omitempty"`
	PathStats []PathStats        `json:"pathStats,omitempty"`
	Close     CloseDetails       `json:"close"`
}

// RunRecord is one completed probe run retained for the final report.
type RunRecord struct {
	ID         string             `json:"id"`
	Script     string             `json:"script"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Summary    *ConnectionSummary `json:"summary,omitempty"`
	Error      *string            `json:"error,omitempty"`
}
