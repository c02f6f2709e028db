package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/promptduel/promptduel-backend/internal/config"
	"github.com/promptduel/promptduel-backend/internal/httpapi"
	"github.com/promptduel/promptduel-backend/internal/match"
	"github.com/promptduel/promptduel-backend/internal/oracle"
	"github.com/promptduel/promptduel-backend/internal/queue"
	"github.com/promptduel/promptduel-backend/internal/registry"
	"github.com/promptduel/promptduel-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := oracle.New(cfg.OllamaBaseURL, cfg.EmbedModel, cfg.LLMModel, logger)

	var sink match.Sink = store.Noop{}
	var lb httpapi.Leaderboarder
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		sink = st
		lb = st
	} else {
		logger.Warn("DATABASE_URL not set; matches will not be persisted")
	}

	reg := registry.New(ctx, registry.Deps{
		Oracle:        client,
		Targets:       client,
		Sink:          sink,
		Log:           logger,
		RoundDuration: cfg.RoundDuration,
	})
	q := queue.New(reg, logger)
	reg.SetQueue(q)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(q, reg, lb, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
