package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/store"
)

// Leaderboarder is the read side of the store; nil when no database is
// configured.
type Leaderboarder interface {
	Leaderboard(ctx context.Context, limit int) ([]store.User, error)
}

func LeaderboardHandler(lb Leaderboarder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lb == nil {
			http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
			return
		}

		users, err := lb.Leaderboard(r.Context(), 100)
		if err != nil {
			log.Error("leaderboard query failed", zap.Error(err))
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(users)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
