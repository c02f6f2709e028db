package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/match"
	"github.com/promptduel/promptduel-backend/internal/queue"
	"github.com/promptduel/promptduel-backend/internal/registry"
	"github.com/promptduel/promptduel-backend/pkg/types"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

const writeTimeout = 3 * time.Second

// Handler upgrades the connection and runs the player protocol:
// register -> joinQueue/leaveQueue -> submitPrompt, with server events pushed
// back over the same socket.
func Handler(q *queue.Queue, reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	liveNames := newNames()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		client := newClient(conn)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writePump(writeCtx, client, log)

		readLoop(r.Context(), client, q, reg, liveNames, log)

		// Reader is done: the connection is dead either way.
		client.closed.Store(true)
		liveNames.Release(client.id)
		reg.OnDisconnect(client.id)
	}
}

func writePump(ctx context.Context, c *Client, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("marshal server message", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func readLoop(ctx context.Context, c *Client, q *queue.Queue, reg *registry.Registry, liveNames *names, log *zap.Logger) {
	var username string

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.Send("errorMsg", types.ErrorMsg{Error: "bad json"})
			continue
		}

		switch cm.Type {
		case "register":
			if !usernamePattern.MatchString(cm.Username) {
				c.Send("errorMsg", types.ErrorMsg{Error: "Username must be 3-20 letters, digits or underscores."})
				continue
			}
			if !liveNames.Claim(cm.Username, c.id) {
				c.Send("errorMsg", types.ErrorMsg{Error: "Username is already taken."})
				continue
			}
			username = cm.Username
			c.Send("registered", types.Ack{OK: true})

		case "joinQueue":
			if username == "" {
				c.Send("errorMsg", types.ErrorMsg{Error: "Please register first."})
				continue
			}
			q.Join(username, c)

		case "leaveQueue":
			if username != "" {
				q.Leave(username)
			}
			c.Send("leftQueue", types.Ack{OK: true})

		case "submitPrompt":
			if username == "" {
				c.Send("errorMsg", types.ErrorMsg{Error: "Please register first."})
				continue
			}
			if err := reg.SubmitPrompt(cm.MatchID, username, cm.Prompt); err != nil {
				c.Send("errorMsg", types.ErrorMsg{Error: submitErrorText(err)})
			}

		default:
			c.Send("errorMsg", types.ErrorMsg{Error: "unknown message type"})
		}
	}
}

func submitErrorText(err error) string {
	var invalid *match.InvalidSubmissionError
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return "Match not found."
	case errors.Is(err, match.ErrNotInMatch):
		return "You are not part of this match."
	case errors.As(err, &invalid):
		return invalid.Error()
	default:
		return "Server error scoring prompt"
	}
}
