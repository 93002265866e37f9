package broker

import (
	"log/slog"
	"sync"
	"time"
)

// entry is the registry's mutable record of one session. All fields are
// guarded by the registry mutex. proc is nil while the child is being
// spawned; the reservation still counts toward the single-transcoder
// invariant.
type entry struct {
	name          StreamName
	sourceURL     string
	key           StreamKey
	createdAt     time.Time
	lastHeartbeat time.Time
	proc          Process
	spawning      bool
}

func (e *entry) snapshot() Session {
	return Session{
		Name:          e.name,
		SourceURL:     e.sourceURL,
		Key:           e.key,
		CreatedAt:     e.createdAt,
		LastHeartbeat: e.lastHeartbeat,
	}
}

// alive reports whether the entry still represents a running (or starting)
// child. Caller must hold the registry mutex.
func (e *entry) alive() bool {
	if e.spawning {
		return true
	}
	return e.proc != nil && !e.proc.Exited()
}

// Registry is the concurrent mapping from display name to session. All
// session mutation flows through it. Critical sections only touch the map
// and timestamps; process spawn and kill happen outside the lock.
type Registry struct {
	mu      sync.Mutex
	entries map[StreamName]*entry
	driver  Driver
	log     *slog.Logger
	now     func() time.Time
}

// NewRegistry returns an empty registry that spawns children through driver.
func NewRegistry(driver Driver, log *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[StreamName]*entry),
		driver:  driver,
		log:     log,
		now:     time.Now,
	}
}

// EnsureRunning returns the session for name, spawning a transcoder for
// sourceURL if none is running. started reports whether this call spawned a
// new child. If a live session exists its heartbeat is refreshed and its
// snapshot returned unchanged; the first writer's source URL wins until the
// session ends. A session whose child has already exited is replaced.
func (r *Registry) EnsureRunning(name StreamName, sourceURL string) (s Session, started bool, err error) {
	var stale Process

	r.mu.Lock()
	if e, ok := r.entries[name]; ok {
		if e.alive() {
			e.lastHeartbeat = r.now()
			s = e.snapshot()
			r.mu.Unlock()
			return s, false, nil
		}
		stale = e.proc
		delete(r.entries, name)
		r.log.Warn("replacing session with exited transcoder", slog.String("name", string(name)))
	}

	now := r.now()
	res := &entry{
		name:          name,
		sourceURL:     sourceURL,
		key:           DeriveKey(name),
		createdAt:     now,
		lastHeartbeat: now,
		spawning:      true,
	}
	r.entries[name] = res
	r.mu.Unlock()

	if stale != nil {
		stale.Stop()
	}

	proc, err := r.driver.Spawn(sourceURL, res.key)

	r.mu.Lock()
	cur, ok := r.entries[name]
	if err != nil {
		if ok && cur == res {
			delete(r.entries, name)
		}
		r.mu.Unlock()
		return Session{}, false, err
	}
	if !ok || cur != res {
		// The reservation was removed while spawning (shutdown). Undo.
		r.mu.Unlock()
		proc.Stop()
		return Session{}, false, ErrUnknownStream
	}
	res.proc = proc
	res.spawning = false
	s = res.snapshot()
	r.mu.Unlock()

	return s, true, nil
}

// Touch refreshes the heartbeat for name. It reports false when no session
// exists. The timestamp never moves backward.
func (r *Registry) Touch(name StreamName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	if now := r.now(); now.After(e.lastHeartbeat) {
		e.lastHeartbeat = now
	}
	return true
}

// Stop removes the session for name, if any, and terminates its child.
func (r *Registry) Stop(name StreamName) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if ok && e.proc != nil {
		e.proc.Stop()
		r.log.Info("session stopped", slog.String("name", string(name)))
	}
}

// ReapIdle removes every session whose last heartbeat is older than threshold
// at instant now, and every session whose child has exited. It returns the
// number of sessions removed. The idle condition is re-checked inside the
// removal critical section, so a heartbeat that lands after now was sampled
// always saves its session.
func (r *Registry) ReapIdle(threshold time.Duration, now time.Time) int {
	r.mu.Lock()
	candidates := make([]StreamName, 0)
	for name, e := range r.entries {
		if r.reapable(e, threshold, now) {
			candidates = append(candidates, name)
		}
	}
	r.mu.Unlock()

	reaped := 0
	for _, name := range candidates {
		r.mu.Lock()
		e, ok := r.entries[name]
		if !ok || !r.reapable(e, threshold, now) {
			r.mu.Unlock()
			continue
		}
		delete(r.entries, name)
		r.mu.Unlock()

		exited := e.proc != nil && e.proc.Exited()
		if e.proc != nil {
			e.proc.Stop()
		}
		r.log.Info("session reaped",
			slog.String("name", string(name)),
			slog.Duration("idle", now.Sub(e.lastHeartbeat)),
			slog.Bool("child_exited", exited),
		)
		reaped++
	}
	return reaped
}

// reapable reports whether e is past the idle bound or its child is gone.
// Caller must hold the registry mutex. A session still spawning is never
// reapable; its heartbeat is fresh by construction.
func (r *Registry) reapable(e *entry, threshold time.Duration, now time.Time) bool {
	if e.spawning {
		return false
	}
	if e.proc != nil && e.proc.Exited() {
		return true
	}
	return now.Sub(e.lastHeartbeat) > threshold
}

// Snapshot returns a point-in-time copy of every session.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown removes every session and terminates the children. Used on
// process exit after the HTTP listener has drained.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	stopped := make([]*entry, 0, len(r.entries))
	for name, e := range r.entries {
		delete(r.entries, name)
		stopped = append(stopped, e)
	}
	r.mu.Unlock()

	for _, e := range stopped {
		if e.proc != nil {
			e.proc.Stop()
		}
	}
	if len(stopped) > 0 {
		r.log.Info("all sessions stopped", slog.Int("count", len(stopped)))
	}
}
