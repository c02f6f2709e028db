package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/match"
	"github.com/promptduel/promptduel-backend/pkg/types"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events map[string]any
	live   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, live: true, events: make(map[string]any)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeConn) Send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event] = payload
}

func (c *fakeConn) event(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.events[name]
	return p, ok
}

type fakeStarter struct {
	pairs chan [2]match.PlayerRef
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{pairs: make(chan [2]match.PlayerRef, 4)}
}

func (s *fakeStarter) StartMatch(a, b match.PlayerRef) {
	s.pairs <- [2]match.PlayerRef{a, b}
}

func (s *fakeStarter) nextPair(t *testing.T) [2]match.PlayerRef {
	t.Helper()
	select {
	case p := <-s.pairs:
		return p
	case <-time.After(time.Second):
		t.Fatalf("no pair started")
		return [2]match.PlayerRef{}
	}
}

func (s *fakeStarter) noPair(t *testing.T) {
	t.Helper()
	select {
	case p := <-s.pairs:
		t.Fatalf("unexpected pair: %s vs %s", p[0].Username, p[1].Username)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_PairsInJoinOrder(t *testing.T) {
	starter := newFakeStarter()
	q := New(starter, zap.NewNop())

	q.Join("alice", newFakeConn("c1"))
	require.Equal(t, 1, q.Len())
	starter.noPair(t)

	q.Join("bob", newFakeConn("c2"))

	pair := starter.nextPair(t)
	require.Equal(t, "alice", pair[0].Username)
	require.Equal(t, "bob", pair[1].Username)
	require.Equal(t, 0, q.Len())
}

func TestQueue_ThirdPlayerWaits(t *testing.T) {
	starter := newFakeStarter()
	q := New(starter, zap.NewNop())

	q.Join("alice", newFakeConn("c1"))
	q.Join("bob", newFakeConn("c2"))
	q.Join("carol", newFakeConn("c3"))

	starter.nextPair(t)
	starter.noPair(t)
	require.Equal(t, 1, q.Len())
}

func TestQueue_SendsQueuedAck(t *testing.T) {
	q := New(newFakeStarter(), zap.NewNop())

	conn := newFakeConn("c1")
	q.Join("alice", conn)

	payload, ok := conn.event("queued")
	require.True(t, ok)
	require.Equal(t, types.Ack{OK: true}, payload)
}

func TestQueue_RejoinReplacesEntry(t *testing.T) {
	starter := newFakeStarter()
	q := New(starter, zap.NewNop())

	q.Join("alice", newFakeConn("c1"))
	fresh := newFakeConn("c2")
	q.Join("alice", fresh)
	require.Equal(t, 1, q.Len(), "rejoin must not duplicate the player")

	q.Join("bob", newFakeConn("c3"))
	pair := starter.nextPair(t)
	require.Equal(t, "c2", pair[0].Conn.ID(), "pairing must use the latest connection")
}

func TestQueue_DeadConnectionDiscarded(t *testing.T) {
	starter := newFakeStarter()
	q := New(starter, zap.NewNop())

	dead := newFakeConn("c1")
	dead.live = false
	q.Join("alice", dead)
	q.Join("bob", newFakeConn("c2"))

	starter.noPair(t)
	require.Equal(t, 1, q.Len(), "only bob should remain")
}

func TestQueue_SameConnectionNeverFacesItself(t *testing.T) {
	starter := newFakeStarter()
	q := New(starter, zap.NewNop())

	shared := newFakeConn("c1")
	q.Join("alice", shared)
	q.Join("alice_alt", shared)

	starter.noPair(t)
	require.Equal(t, 1, q.Len())
}

func TestQueue_LeaveRemovesEntry(t *testing.T) {
	q := New(newFakeStarter(), zap.NewNop())

	q.Join("alice", newFakeConn("c1"))
	q.Leave("alice")
	require.Equal(t, 0, q.Len())

	// Leaving when not queued is a no-op.
	q.Leave("ghost")
	require.Equal(t, 0, q.Len())
}

func TestQueue_DropConnRemovesEntry(t *testing.T) {
	q := New(newFakeStarter(), zap.NewNop())

	q.Join("alice", newFakeConn("c1"))
	q.DropConn("c1")
	require.Equal(t, 0, q.Len())

	q.DropConn("unknown")
	require.Equal(t, 0, q.Len())
}
