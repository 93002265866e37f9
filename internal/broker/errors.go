package broker

import "errors"

var (
	// ErrUnknownStream is returned when a play request without a source URL
	// names a stream missing from the catalog, and by Registry.EnsureRunning
	// when the session's reservation was removed while its child was being
	// spawned.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrBadSourceURL is returned when a play request supplies a custom
	// source that is not an rtsp:// URL.
	ErrBadSourceURL = errors.New("source url must start with rtsp://")

	// ErrSpawnFailed wraps a failure to launch the transcoder child. No
	// session is registered when it is returned.
	ErrSpawnFailed = errors.New("transcoder spawn failed")

	// ErrProbeTimeout is returned when the origin never reported the stream
	// live within the probe deadline. The session stays registered so a
	// follow-up play can succeed without respawning.
	ErrProbeTimeout = errors.New("origin did not report stream live in time")
)
