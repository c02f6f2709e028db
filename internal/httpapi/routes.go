package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/queue"
	"github.com/promptduel/promptduel-backend/internal/registry"
	"github.com/promptduel/promptduel-backend/internal/ws"
)

func SetupRoutes(q *queue.Queue, reg *registry.Registry, lb Leaderboarder, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/api/leaderboard", LeaderboardHandler(lb, log))
	r.Get("/ws", ws.Handler(q, reg, log))
	return r
}
