package broker

import "time"

// StreamName is the user-facing display name of a stream, as configured or as
// supplied by a play request. It is the registry key.
type StreamName string

// StreamKey is the canonical identifier a stream is published under in the
// origin. It is a pure function of the display name (see DeriveKey).
type StreamKey string

// Session is a read-only snapshot of one active stream: the display name, the
// RTSP source actually in use, the derived key, and its timing state.
// Snapshots are returned by the registry; mutating one has no effect on the
// live entry.
type Session struct {
	Name          StreamName
	SourceURL     string
	Key           StreamKey
	CreatedAt     time.Time
	LastHeartbeat time.Time
}
