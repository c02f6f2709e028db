package types

// Client -> Server
//
// register:     { username }
// joinQueue:    {}
// leaveQueue:   {}
// submitPrompt: { matchId, prompt }
type ClientMessage struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	MatchID  string `json:"matchId,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// ServerMessage is the envelope for every event pushed to a client.
// Type carries the event name ("queued", "matchStarted", "roundResult", ...).
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Ack struct {
	OK bool `json:"ok"`
}

type ErrorMsg struct {
	Error string `json:"error"`
}

// PlayerPair names the two players bound to a match. Slot order carries no
// meaning; p1/p2 are arbitrary.
type PlayerPair struct {
	P1 string `json:"p1"`
	P2 string `json:"p2"`
}

type MatchStarted struct {
	MatchID string     `json:"matchId"`
	Players PlayerPair `json:"players"`
	Round   int        `json:"round"`
	Target  string     `json:"target"`
}

type NextRound struct {
	Round  int    `json:"round"`
	Target string `json:"target"`
}

// PlayerRound is one player's share of a scored round.
type PlayerRound struct {
	Username string `json:"username"`
	Prompt   string `json:"prompt"`
	Score    int    `json:"score"`
	Total    int    `json:"total"`
}

type RoundResult struct {
	Round  int         `json:"round"`
	Target string      `json:"target"`
	P1     PlayerRound `json:"p1"`
	P2     PlayerRound `json:"p2"`
}

type Totals struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// GameOver closes out a match. Winner is nil on a draw.
type GameOver struct {
	Winner *string       `json:"winner"`
	Totals Totals        `json:"totals"`
	Rounds []RoundResult `json:"rounds"`
}
