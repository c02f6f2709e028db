// Package match implements the lifecycle of one duel: three timed rounds in
// which both players describe a hidden target phrase, an oracle rates each
// description, and points accumulate to a winner.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/pkg/types"
)

var ErrMatchNotFound = errors.New("match not found")
var ErrNotInMatch = errors.New("player not in this match")

// InvalidSubmissionError rejects a description that contains target words.
// Recoverable: the round stays open and the player may resubmit.
type InvalidSubmissionError struct {
	Words []string
}

func (e *InvalidSubmissionError) Error() string {
	return fmt.Sprintf("prompt contains target words: %q - please describe without using these exact words",
		strings.Join(e.Words, `", "`))
}

// Conn is the outbound channel to one player. Send is fire-and-forget; the
// session never closes or otherwise mutates the underlying connection.
type Conn interface {
	ID() string
	Send(event string, payload any)
	Live() bool
}

// PlayerRef is the session's weak reference to a player: the connection may
// die at any time.
type PlayerRef struct {
	Username string
	Conn     Conn
}

type Status string

const (
	StatusAwaitingSubmissions Status = "awaiting_submissions"
	StatusScoring             Status = "scoring"
	StatusCompleted           Status = "completed"
)

const (
	totalRounds    = 3
	autoSubmitText = "No response provided"
)

// Oracle rates similarity between two phrases. Total: always a value in [0,1],
// never an error. Degraded results are the oracle's problem, not ours.
type Oracle interface {
	Similarity(ctx context.Context, a, b string) float64
}

// TargetSource produces count unique phrases outside exclude. Total: always
// returns exactly count items.
type TargetSource interface {
	Targets(ctx context.Context, count int, exclude []string) []string
}

// Record is what a finished match hands to the result sink.
type Record struct {
	Players [2]string
	Winner  string // empty on a draw
	Rounds  []types.RoundResult
	Totals  [2]int
}

// Sink persists a finished match. Failures are logged by the session and
// never reach the players.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// Deps is everything a session needs besides its two players.
type Deps struct {
	Oracle        Oracle
	Targets       TargetSource
	Sink          Sink
	Log           *zap.Logger
	RoundDuration time.Duration
	// OnDone is called exactly once, from the session goroutine, when the
	// session ends by completion or abandonment.
	OnDone func(matchID string)
}

type submission struct {
	Text          string
	SubmittedAt   time.Time
	AutoSubmitted bool
}

// View is a read-only snapshot for tests.
type View struct {
	Round   int
	Status  Status
	Scores  [2]int
	History []types.RoundResult
	Targets []string
}
