// Package registry tracks live match sessions and routes player actions to
// the right one.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/match"
)

// Deps carries the collaborators handed to every new session.
type Deps struct {
	Oracle        match.Oracle
	Targets       match.TargetSource
	Sink          match.Sink
	Log           *zap.Logger
	RoundDuration time.Duration
}

// Dropper removes a queued entry bound to a connection. Implemented by the
// matchmaking queue; an interface here because queue and registry reference
// each other (the queue starts matches through the registry).
type Dropper interface {
	DropConn(connID string)
}

// Registry owns all live sessions. A player is in at most one active match,
// so connection IDs map straight to match IDs for O(1) disconnect lookup.
type Registry struct {
	mu      sync.Mutex
	matches map[string]*match.Session
	byConn  map[string]string // connID -> matchID
	queue   Dropper

	ctx  context.Context
	deps Deps
}

func New(ctx context.Context, deps Deps) *Registry {
	return &Registry{
		matches: make(map[string]*match.Session),
		byConn:  make(map[string]string),
		ctx:     ctx,
		deps:    deps,
	}
}

// StartMatch creates, registers, and starts a session for the paired players.
// It satisfies queue.Starter.
func (r *Registry) StartMatch(a, b match.PlayerRef) {
	s := match.NewSession(r.ctx, match.Deps{
		Oracle:        r.deps.Oracle,
		Targets:       r.deps.Targets,
		Sink:          r.deps.Sink,
		Log:           r.deps.Log,
		RoundDuration: r.deps.RoundDuration,
		OnDone:        r.remove,
	}, a, b)

	// Register before the session goes live: Start blocks on target
	// generation, and a disconnect during that window must still find its
	// session through byConn.
	r.mu.Lock()
	r.matches[s.ID()] = s
	r.byConn[a.Conn.ID()] = s.ID()
	r.byConn[b.Conn.ID()] = s.ID()
	r.mu.Unlock()

	s.Start()

	// A connection that died before the registration above was invisible to
	// OnDisconnect; abort for it now.
	for _, p := range s.Players() {
		if !p.Conn.Live() {
			s.Abort(p.Conn.ID())
		}
	}
}

// SubmitPrompt routes a submission to its session.
func (r *Registry) SubmitPrompt(matchID, username, text string) error {
	r.mu.Lock()
	s, ok := r.matches[matchID]
	r.mu.Unlock()

	if !ok {
		return match.ErrMatchNotFound
	}
	// Outside the lock: Submit blocks until the session processes it, and
	// the session may call back into remove.
	return s.Submit(username, text)
}

// SetQueue wires in the matchmaking queue once both components exist.
func (r *Registry) SetQueue(q Dropper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = q
}

// OnDisconnect cleans up after a dropped connection: a queued player is
// forgotten, an in-match player's session is aborted immediately.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()
	if q != nil {
		q.DropConn(connID)
	}

	r.mu.Lock()
	matchID, ok := r.byConn[connID]
	var s *match.Session
	if ok {
		s = r.matches[matchID]
	}
	r.mu.Unlock()

	if s != nil {
		s.Abort(connID)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// Get returns the live session for matchID, if any.
func (r *Registry) Get(matchID string) (*match.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.matches[matchID]
	return s, ok
}

// remove destroys all trace of a session. Runs on the session goroutine when
// a match completes or is abandoned; a finished matchID is never reachable
// again.
func (r *Registry) remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.matches[matchID]
	if !ok {
		return
	}
	delete(r.matches, matchID)
	for _, p := range s.Players() {
		if r.byConn[p.Conn.ID()] == matchID {
			delete(r.byConn, p.Conn.ID())
		}
	}
}
