// Package queue pairs waiting players off two at a time, strictly FIFO.
package queue

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/match"
	"github.com/promptduel/promptduel-backend/pkg/types"
)

// Starter turns a pair of queued players into a running match.
type Starter interface {
	StartMatch(a, b match.PlayerRef)
}

type entry struct {
	username string
	conn     match.Conn
	joinedAt time.Time
}

type Queue struct {
	mu      sync.Mutex
	entries []entry
	starter Starter
	log     *zap.Logger
}

func New(starter Starter, log *zap.Logger) *Queue {
	return &Queue{starter: starter, log: log}
}

// Join appends the player at the tail, replacing any prior entry for the same
// username, then attempts pairing.
func (q *Queue) Join(username string, conn match.Conn) {
	q.mu.Lock()
	q.removeLocked(username)
	q.entries = append(q.entries, entry{
		username: username,
		conn:     conn,
		joinedAt: time.Now(),
	})
	size := len(q.entries)
	pairs := q.pairLocked()
	q.mu.Unlock()

	q.log.Info("player joined queue", zap.String("username", username), zap.Int("queue_size", size))
	conn.Send("queued", types.Ack{OK: true})

	q.start(pairs)
}

// Leave removes the matching entry if present; no-op otherwise.
func (q *Queue) Leave(username string) {
	q.mu.Lock()
	removed := q.removeLocked(username)
	q.mu.Unlock()

	if removed {
		q.log.Info("player left queue", zap.String("username", username))
	}
}

// DropConn removes whatever entry is bound to the given connection. Called on
// disconnect.
func (q *Queue) DropConn(connID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.conn.ID() == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Len reports the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type pairing struct{ a, b entry }

// pairLocked dequeues the two longest-waiting live entries until fewer than
// two remain. Entries with dead connections are discarded for good: the
// player must rejoin.
func (q *Queue) pairLocked() []pairing {
	var pairs []pairing
	for len(q.entries) >= 2 {
		a := q.entries[0]
		if !a.conn.Live() {
			q.entries = q.entries[1:]
			continue
		}
		b := q.entries[1]
		if !b.conn.Live() {
			q.entries = append(q.entries[:1], q.entries[2:]...)
			continue
		}
		// The same connection queued twice must never face itself.
		if a.conn.ID() == b.conn.ID() {
			q.entries = q.entries[1:]
			continue
		}
		q.entries = q.entries[2:]
		pairs = append(pairs, pairing{a: a, b: b})
	}
	return pairs
}

// start launches matches outside the queue lock; target generation can block.
func (q *Queue) start(pairs []pairing) {
	for _, p := range pairs {
		q.log.Info("paired players",
			zap.String("p1", p.a.username),
			zap.String("p2", p.b.username))
		go q.starter.StartMatch(
			match.PlayerRef{Username: p.a.username, Conn: p.a.conn},
			match.PlayerRef{Username: p.b.username, Conn: p.b.conn},
		)
	}
}

func (q *Queue) removeLocked(username string) bool {
	for i, e := range q.entries {
		if e.username == username {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}
