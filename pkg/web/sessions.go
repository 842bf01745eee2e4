package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/hub"
)

type entry struct {
	session *capture.Session
	touched time.Time
}

// registry tracks capture sessions by ID. At most one of them holds the
// camera; opening another closes the previous holder.
type registry struct {
	create func(id string) *capture.Session
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	active   string
}

func newRegistry(create func(id string) *capture.Session, logger *slog.Logger) *registry {
	return &registry{
		create:   create,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// open returns the session for id, creating it if needed, and makes it the
// camera holder. The previous holder is closed and forgotten.
func (r *registry) open(id string) *capture.Session {
	r.mu.Lock()
	var evicted *capture.Session
	if r.active != "" && r.active != id {
		if prev, ok := r.sessions[r.active]; ok {
			evicted = prev.session
			delete(r.sessions, r.active)
		}
	}
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: r.create(id)}
		r.sessions[id] = e
	}
	e.touched = r.now()
	prevID := r.active
	r.active = id
	r.mu.Unlock()

	if evicted != nil {
		r.logger.Info("closing previous capture session", "session", prevID, "next", id)
		evicted.Close()
	}
	return e.session
}

// get returns the session for id and marks it used.
func (r *registry) get(id string) (*capture.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = r.now()
	return e.session, true
}

// close closes and forgets the session. It reports whether it existed.
func (r *registry) close(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		if r.active == id {
			r.active = ""
		}
	}
	r.mu.Unlock()

	if ok {
		e.session.Close()
	}
	return ok
}

// reap closes sessions not used since now-ttl.
func (r *registry) reap(now time.Time, ttl time.Duration) int {
	return r.closeWhere(func(e *entry) bool { return now.Sub(e.touched) > ttl })
}

func (r *registry) closeAll() int {
	return r.closeWhere(func(*entry) bool { return true })
}

func (r *registry) closeWhere(match func(*entry) bool) int {
	r.mu.Lock()
	var doomed []*capture.Session
	for id, e := range r.sessions {
		if !match(e) {
			continue
		}
		doomed = append(doomed, e.session)
		delete(r.sessions, id)
		if r.active == id {
			r.active = ""
		}
	}
	r.mu.Unlock()

	for _, sess := range doomed {
		sess.Close()
	}
	return len(doomed)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) activeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// newSession builds a capture session that publishes its phase changes.
func (s *Server) newSession(id string) *capture.Session {
	sess := capture.NewSession(s.opts.Device, s.opts.Encoder,
		capture.WithID(id),
		capture.WithRequest(s.camera.Request()),
		capture.WithConstraint(s.opts.Constraint),
		capture.WithCaptureTimeout(s.opts.CaptureTimeout),
		capture.WithLogger(s.opts.Logger),
	)
	sess.AddListener(func(prev, next capture.Phase) {
		s.publish(hub.Event{
			Type:     "phase",
			Session:  id,
			Phase:    next.String(),
			Previous: prev.String(),
		})
	})
	return sess
}

func (s *Server) publish(e hub.Event) {
	if err := s.hub.Publish(e); err != nil {
		s.logger.Warn("event not published", "type", e.Type, "session", e.Session, "error", err)
	}
}
