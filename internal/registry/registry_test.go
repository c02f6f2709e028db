package registry

import (
	"context"
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
	live   bool
	events []struct {
		name    string
		payload any
	}
}

func newConn(id string) *fakeConn {
	return &fakeConn{id: id, live: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeConn) setLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = live
}

func (c *fakeConn) Send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, struct {
		name    string
		payload any
	}{event, payload})
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.name == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) matchID(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.name == "matchStarted" {
			return e.payload.(types.MatchStarted).MatchID
		}
	}
	t.Fatalf("matchStarted never sent to %s", c.id)
	return ""
}

type fakeOracle struct{ sim float64 }

func (o fakeOracle) Similarity(context.Context, string, string) float64 { return o.sim }

type fakeTargets struct{}

func (fakeTargets) Targets(context.Context, int, []string) []string {
	return []string{"quiet harbor", "tall lighthouse", "winter storm"}
}

type fakeSink struct {
	mu      sync.Mutex
	records int
}

func (s *fakeSink) Record(context.Context, match.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records++
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

type fakeDropper struct {
	mu      sync.Mutex
	dropped []string
}

func (d *fakeDropper) DropConn(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped = append(d.dropped, connID)
}

func (d *fakeDropper) droppedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dropped...)
}

// slowTargets blocks target generation until released, standing in for a slow
// model call.
type slowTargets struct {
	entered chan struct{}
	release chan struct{}
}

func newSlowTargets() *slowTargets {
	return &slowTargets{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *slowTargets) Targets(ctx context.Context, count int, exclude []string) []string {
	close(s.entered)
	<-s.release
	return fakeTargets{}.Targets(ctx, count, exclude)
}

func newTestRegistry(t *testing.T, sink match.Sink) *Registry {
	t.Helper()
	return newTestRegistryWith(t, sink, fakeTargets{})
}

func newTestRegistryWith(t *testing.T, sink match.Sink, targets match.TargetSource) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return New(ctx, Deps{
		Oracle:        fakeOracle{sim: 0.5},
		Targets:       targets,
		Sink:          sink,
		Log:           zap.NewNop(),
		RoundDuration: time.Minute,
	})
}

func TestRegistry_StartMatchRegistersSession(t *testing.T) {
	r := newTestRegistry(t, &fakeSink{})
	a, b := newConn("c1"), newConn("c2")

	r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)

	require.Equal(t, 1, r.Len())
	id := a.matchID(t)
	require.Equal(t, id, b.matchID(t), "both players see the same match")

	_, ok := r.Get(id)
	require.True(t, ok)
	require.NoError(t, r.SubmitPrompt(id, "alice", "a calm evening scene"))
}

func TestRegistry_SubmitToUnknownMatch(t *testing.T) {
	r := newTestRegistry(t, &fakeSink{})

	err := r.SubmitPrompt("no-such-match", "alice", "anything")
	require.ErrorIs(t, err, match.ErrMatchNotFound)
}

func TestRegistry_SubmitByOutsider(t *testing.T) {
	r := newTestRegistry(t, &fakeSink{})
	a, b := newConn("c1"), newConn("c2")
	r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)

	err := r.SubmitPrompt(a.matchID(t), "mallory", "anything")
	require.ErrorIs(t, err, match.ErrNotInMatch)
}

func TestRegistry_OnDisconnectAbortsMatch(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRegistry(t, sink)
	dropper := &fakeDropper{}
	r.SetQueue(dropper)

	a, b := newConn("c1"), newConn("c2")
	r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)
	id := a.matchID(t)

	r.OnDisconnect("c2")

	require.Equal(t, []string{"c2"}, dropper.droppedIDs(), "queue entry is dropped first")
	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.count("errorMsg") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, sink.count(), "abandoned matches are not persisted")

	err := r.SubmitPrompt(id, "alice", "anything")
	require.ErrorIs(t, err, match.ErrMatchNotFound)
}

func TestRegistry_DisconnectDuringMatchStartAborts(t *testing.T) {
	sink := &fakeSink{}
	targets := newSlowTargets()
	r := newTestRegistryWith(t, sink, targets)
	r.SetQueue(&fakeDropper{})

	a, b := newConn("c1"), newConn("c2")
	go r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)

	// Drop bob while target generation is still in flight, then let it finish.
	select {
	case <-targets.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("target generation never started")
	}
	b.setLive(false)
	r.OnDisconnect("c2")
	close(targets.release)

	require.Eventually(t, func() bool { return a.count("errorMsg") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, sink.count(), "abandoned matches are not persisted")
	require.Equal(t, 0, a.count("gameOver"))
}

func TestRegistry_DeadConnectionAtStartAborts(t *testing.T) {
	// The disconnect fired before the session was registered, so OnDisconnect
	// found nothing; the post-start liveness check must catch it.
	sink := &fakeSink{}
	r := newTestRegistry(t, sink)

	a, b := newConn("c1"), newConn("c2")
	b.setLive(false)
	r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)

	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.count("errorMsg") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, sink.count())
}

func TestRegistry_OnDisconnectForUnknownConn(t *testing.T) {
	r := newTestRegistry(t, &fakeSink{})
	dropper := &fakeDropper{}
	r.SetQueue(dropper)

	r.OnDisconnect("nobody")
	require.Equal(t, []string{"nobody"}, dropper.droppedIDs())
	require.Equal(t, 0, r.Len())
}

func TestRegistry_CompletedMatchIsRemoved(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRegistry(t, sink)

	a, b := newConn("c1"), newConn("c2")
	r.StartMatch(
		match.PlayerRef{Username: "alice", Conn: a},
		match.PlayerRef{Username: "bob", Conn: b},
	)
	id := a.matchID(t)

	for round := 1; round <= 3; round++ {
		require.NoError(t, r.SubmitPrompt(id, "alice", "a calm evening scene"))
		require.NoError(t, r.SubmitPrompt(id, "bob", "a busy morning street"))
	}

	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	err := r.SubmitPrompt(id, "alice", "anything")
	require.ErrorIs(t, err, match.ErrMatchNotFound)
}
