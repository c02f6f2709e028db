package match

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/promptduel/promptduel-backend/internal/scoring"
	"github.com/promptduel/promptduel-backend/internal/validate"
	"github.com/promptduel/promptduel-backend/pkg/types"
)

type sessionMsg interface{ isSessionMsg() }

type submitMsg struct {
	Username string
	Text     string
	Reply    chan error
}

func (submitMsg) isSessionMsg() {}

// deadlineMsg carries the round it was armed for so a stale fire, racing an
// early dual-submission close, is discarded instead of auto-submitting into a
// later round.
type deadlineMsg struct{ Round int }

func (deadlineMsg) isSessionMsg() {}

// abortMsg ends the match because a player's connection dropped.
type abortMsg struct{ ConnID string }

func (abortMsg) isSessionMsg() {}

type getViewMsg struct{ Reply chan View }

func (getViewMsg) isSessionMsg() {}

// Session owns one match. All state transitions run on the session goroutine;
// callers talk to it through typed messages.
type Session struct {
	id      string
	players [2]PlayerRef

	round   int
	targets []string
	subs    [2]*submission
	scores  [2]int
	history []types.RoundResult
	status  Status
	timer   *time.Timer

	inbox  chan sessionMsg
	ctx    context.Context
	cancel context.CancelFunc

	deps Deps
	log  *zap.Logger
}

// NewSession binds both players to a fresh session. The session is inert
// until Start: no targets are generated, no events sent, no goroutine
// launched. Callers register the session for disconnect routing first, then
// Start it; an Abort enqueued in between is processed as soon as the loop
// runs.
func NewSession(parent context.Context, deps Deps, a, b PlayerRef) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:      uuid.NewString(),
		players: [2]PlayerRef{a, b},
		round:   1,
		status:  StatusAwaitingSubmissions,
		inbox:   make(chan sessionMsg, 16),
		ctx:     ctx,
		cancel:  cancel,
		deps:    deps,
	}
	s.log = deps.Log.With(zap.String("match_id", s.id))
	return s
}

// Start generates the three targets, announces the match, arms the round-1
// deadline, and launches the session goroutine. Target generation can block
// on the network.
func (s *Session) Start() {
	s.targets = s.deps.Targets.Targets(s.ctx, totalRounds, nil)

	s.broadcast("matchStarted", types.MatchStarted{
		MatchID: s.id,
		Players: types.PlayerPair{P1: s.players[0].Username, P2: s.players[1].Username},
		Round:   s.round,
		Target:  s.currentTarget(),
	})
	s.armDeadline()

	s.log.Info("match started",
		zap.String("p1", s.players[0].Username),
		zap.String("p2", s.players[1].Username))

	go s.loop()
}

func (s *Session) ID() string { return s.id }

func (s *Session) Players() [2]PlayerRef { return s.players }

// Submit records username's description for the current round. It blocks
// until the session has processed the submission or ended.
func (s *Session) Submit(username, text string) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- submitMsg{Username: username, Text: text, Reply: reply}:
	case <-s.ctx.Done():
		return ErrMatchNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrMatchNotFound
	}
}

// Abort ends the match because the given connection disconnected. No-op if
// the connection is not bound to this session or the session already ended.
func (s *Session) Abort(connID string) {
	select {
	case s.inbox <- abortMsg{ConnID: connID}:
	case <-s.ctx.Done():
	}
}

// GetView returns a snapshot without data races. Test-only, like the rest of
// the message API it rides on.
func (s *Session) GetView() (View, bool) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- getViewMsg{Reply: reply}:
	case <-s.ctx.Done():
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-s.ctx.Done():
		return View{}, false
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.stopDeadline()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case submitMsg:
				msg.Reply <- s.handleSubmit(msg.Username, msg.Text)

			case deadlineMsg:
				s.handleDeadline(msg)

			case abortMsg:
				s.handleAbort(msg.ConnID)

			case getViewMsg:
				history := make([]types.RoundResult, len(s.history))
				copy(history, s.history)
				msg.Reply <- View{
					Round:   s.round,
					Status:  s.status,
					Scores:  s.scores,
					History: history,
					Targets: s.targets,
				}
			}

			if s.status == StatusCompleted {
				s.cancel()
				return
			}
		}
	}
}

func (s *Session) handleSubmit(username, text string) error {
	slot := s.slotOf(username)
	if slot < 0 {
		return ErrNotInMatch
	}

	if ok, words := validate.Prompt(text, s.currentTarget()); !ok {
		return &InvalidSubmissionError{Words: words}
	}

	// Resubmission before the round closes overwrites the previous attempt.
	s.subs[slot] = &submission{
		Text:        strings.TrimSpace(text),
		SubmittedAt: time.Now(),
	}

	if s.subs[0] != nil && s.subs[1] != nil {
		s.stopDeadline()
		s.closeRound()
	}
	return nil
}

func (s *Session) handleDeadline(msg deadlineMsg) {
	// A fire for an earlier round lost the race against a dual-submission
	// close; the round it was armed for no longer exists.
	if msg.Round != s.round || s.status != StatusAwaitingSubmissions {
		return
	}

	now := time.Now()
	for slot := range s.subs {
		if s.subs[slot] == nil {
			s.subs[slot] = &submission{
				Text:          autoSubmitText,
				SubmittedAt:   now,
				AutoSubmitted: true,
			}
		}
	}

	s.log.Info("round deadline elapsed", zap.Int("round", s.round))
	s.closeRound()
}

func (s *Session) handleAbort(connID string) {
	var gone, stays int
	switch connID {
	case s.players[0].Conn.ID():
		gone, stays = 0, 1
	case s.players[1].Conn.ID():
		gone, stays = 1, 0
	default:
		return
	}

	s.stopDeadline()
	s.players[stays].Conn.Send("errorMsg", types.ErrorMsg{
		Error: s.players[gone].Username + " disconnected",
	})
	s.log.Info("match abandoned",
		zap.String("disconnected", s.players[gone].Username),
		zap.Int("round", s.round))

	// Abandoned matches never reach completed and are not persisted.
	s.cancel()
	if s.deps.OnDone != nil {
		s.deps.OnDone(s.id)
	}
}

// closeRound scores the round and either advances or completes the match.
// It runs at most once per round: both triggers (dual submission, deadline)
// arrive on the session goroutine and the deadline path checks the round tag.
func (s *Session) closeRound() {
	s.status = StatusScoring
	target := s.currentTarget()

	var sims [2]float64
	g, ctx := errgroup.WithContext(s.ctx)
	for slot := 0; slot < 2; slot++ {
		slot := slot
		g.Go(func() error {
			sims[slot] = s.deps.Oracle.Similarity(ctx, s.subs[slot].Text, target)
			return nil
		})
	}
	// Join barrier: both similarities are in hand before any scoring.
	_ = g.Wait()

	var rounds [2]types.PlayerRound
	for slot := 0; slot < 2; slot++ {
		points := scoring.Points(sims[slot])
		s.scores[slot] += points
		rounds[slot] = types.PlayerRound{
			Username: s.players[slot].Username,
			Prompt:   s.subs[slot].Text,
			Score:    points,
			Total:    s.scores[slot],
		}
	}

	result := types.RoundResult{
		Round:  s.round,
		Target: target,
		P1:     rounds[0],
		P2:     rounds[1],
	}
	s.history = append(s.history, result)
	s.broadcast("roundResult", result)

	s.log.Info("round scored",
		zap.Int("round", s.round),
		zap.Int("p1_points", rounds[0].Score),
		zap.Int("p2_points", rounds[1].Score))

	if s.round == totalRounds {
		s.complete()
		return
	}

	s.round++
	s.subs = [2]*submission{}
	s.status = StatusAwaitingSubmissions
	s.armDeadline()
	s.broadcast("nextRound", types.NextRound{
		Round:  s.round,
		Target: s.currentTarget(),
	})
}

func (s *Session) complete() {
	s.status = StatusCompleted

	var winner *string
	rec := Record{
		Players: [2]string{s.players[0].Username, s.players[1].Username},
		Rounds:  s.history,
		Totals:  s.scores,
	}
	switch {
	case s.scores[0] > s.scores[1]:
		winner = &s.players[0].Username
	case s.scores[1] > s.scores[0]:
		winner = &s.players[1].Username
	}
	if winner != nil {
		rec.Winner = *winner
	}

	s.broadcast("gameOver", types.GameOver{
		Winner: winner,
		Totals: types.Totals{P1: s.scores[0], P2: s.scores[1]},
		Rounds: s.history,
	})

	s.log.Info("match completed",
		zap.String("winner", rec.Winner),
		zap.Int("p1_total", s.scores[0]),
		zap.Int("p2_total", s.scores[1]))

	// Fire-and-forget: the game-over event above is already final, so a
	// persistence failure is logged and goes no further.
	sink, log := s.deps.Sink, s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink.Record(ctx, rec); err != nil {
			log.Error("failed to persist match", zap.Error(err))
		}
	}()

	if s.deps.OnDone != nil {
		s.deps.OnDone(s.id)
	}
}

func (s *Session) armDeadline() {
	s.stopDeadline()
	round := s.round
	s.timer = time.AfterFunc(s.deps.RoundDuration, func() {
		select {
		case s.inbox <- deadlineMsg{Round: round}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) stopDeadline() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) currentTarget() string {
	return s.targets[s.round-1]
}

func (s *Session) slotOf(username string) int {
	for slot, p := range s.players {
		if p.Username == username {
			return slot
		}
	}
	return -1
}

func (s *Session) broadcast(event string, payload any) {
	for _, p := range s.players {
		p.Conn.Send(event, payload)
	}
}
