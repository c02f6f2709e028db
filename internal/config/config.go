// Package config reads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	Env           string // "development" or "production"
	DatabaseURL   string // empty disables persistence
	OllamaBaseURL string
	EmbedModel    string
	LLMModel      string
	RoundDuration time.Duration
}

func Load() (Config, error) {
	// Missing .env is fine; the environment may be set by the deployment.
	_ = godotenv.Load()

	cfg := Config{
		Addr:          getenv("ADDR", ":8080"),
		Env:           getenv("APP_ENV", "development"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		OllamaBaseURL: getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		EmbedModel:    getenv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		LLMModel:      getenv("OLLAMA_LLM_MODEL", "phi4-mini:latest"),
	}

	seconds, err := strconv.Atoi(getenv("ROUND_SECONDS", "30"))
	if err != nil || seconds <= 0 {
		return Config{}, fmt.Errorf("invalid ROUND_SECONDS: %q", os.Getenv("ROUND_SECONDS"))
	}
	cfg.RoundDuration = time.Duration(seconds) * time.Second

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
