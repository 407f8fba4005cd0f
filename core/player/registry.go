package player

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
)

var ErrSessionNotFound = errors.New("session not found")

type (
	// Registry tracks live sessions by id and prunes the ones nobody has
	// touched in a while, so abandoned tabs do not pin memory forever.
	Registry struct {
		deps SessionDeps
		ttl  time.Duration

		mu       sync.Mutex
		sessions map[string]*liveSession

		done chan struct{}
	}

	liveSession struct {
		sess     *Session
		lastSeen time.Time
	}
)

// NewRegistry starts the idle janitor. Call Shutdown to stop it and close
// every live session.
func NewRegistry(deps SessionDeps, idleTTL time.Duration) *Registry {
	reg := &Registry{
		deps:     deps,
		ttl:      idleTTL,
		sessions: make(map[string]*liveSession),
		done:     make(chan struct{}),
	}
	go reg.janitor()
	return reg
}

// Open creates a session for the student and runs its load pipeline. Sessions
// that failed to load are registered too, so the client can retry them.
func (reg *Registry) Open(ctx context.Context, student core.Principal, activitySlug string) *Session {
	sess := NewSession(student, activitySlug, reg.deps)
	sess.Load(ctx)
	reg.mu.Lock()
	reg.sessions[sess.ID()] = &liveSession{sess: sess, lastSeen: nowFunc()}
	reg.mu.Unlock()
	return sess
}

// Get returns a live session and marks it active.
func (reg *Registry) Get(id string) (*Session, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	live, ok := reg.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	live.lastSeen = nowFunc()
	return live.sess, nil
}

// Close drops a session from the registry and marks it closed; calls through
// a stale handle are rejected from then on.
func (reg *Registry) Close(id string) {
	reg.mu.Lock()
	live, ok := reg.sessions[id]
	delete(reg.sessions, id)
	reg.mu.Unlock()
	if ok {
		live.sess.Close()
	}
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.sessions)
}

// Shutdown stops the janitor and closes every live session.
func (reg *Registry) Shutdown() {
	close(reg.done)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, live := range reg.sessions {
		live.sess.Close()
		delete(reg.sessions, id)
	}
}

func (reg *Registry) janitor() {
	ticker := time.NewTicker(janitorInterval(reg.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-reg.done:
			return
		case <-ticker.C:
			reg.pruneIdle(nowFunc())
		}
	}
}

func (reg *Registry) pruneIdle(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, live := range reg.sessions {
		if now.Sub(live.lastSeen) > reg.ttl {
			live.sess.Close()
			delete(reg.sessions, id)
		}
	}
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}
