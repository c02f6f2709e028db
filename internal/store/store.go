// Package store persists finished matches and cumulative per-player stats,
// and serves the leaderboard read model.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/promptduel/promptduel-backend/internal/match"
)

// User is one row of cumulative stats, keyed by username.
type User struct {
	Username      string    `gorm:"primaryKey" json:"username"`
	TotalPoints   int       `json:"total_points"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	MatchesPlayed int       `json:"matches_played"`
	CreatedAt     time.Time `json:"-"`
}

// MatchRow records one finished match, with each round stored as JSON.
type MatchRow struct {
	ID        uint    `gorm:"primaryKey"`
	Player1   string  `gorm:"index"`
	Player2   string  `gorm:"index"`
	Winner    *string // nil on a draw
	Round1    string
	Round2    string
	Round3    string
	CreatedAt time.Time
}

func (MatchRow) TableName() string { return "matches" }

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &MatchRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Record writes the match row and folds both players' totals into their
// stats rows, in one transaction.
func (s *Store) Record(ctx context.Context, rec match.Record) error {
	rounds := [3]string{}
	for i, r := range rec.Rounds {
		if i >= len(rounds) {
			break
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal round %d: %w", i+1, err)
		}
		rounds[i] = string(raw)
	}

	var winner *string
	if rec.Winner != "" {
		winner = &rec.Winner
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := MatchRow{
			Player1: rec.Players[0],
			Player2: rec.Players[1],
			Winner:  winner,
			Round1:  rounds[0],
			Round2:  rounds[1],
			Round3:  rounds[2],
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		for slot, username := range rec.Players {
			wins, losses := 0, 0
			if rec.Winner == username {
				wins = 1
			} else if rec.Winner != "" {
				losses = 1
			}

			if err := tx.Where(User{Username: username}).FirstOrCreate(&User{Username: username}).Error; err != nil {
				return fmt.Errorf("ensure user %s: %w", username, err)
			}
			err := tx.Model(&User{}).Where("username = ?", username).Updates(map[string]any{
				"total_points":   gorm.Expr("total_points + ?", rec.Totals[slot]),
				"wins":           gorm.Expr("wins + ?", wins),
				"losses":         gorm.Expr("losses + ?", losses),
				"matches_played": gorm.Expr("matches_played + ?", 1),
			}).Error
			if err != nil {
				return fmt.Errorf("update stats for %s: %w", username, err)
			}
		}
		return nil
	})
}

// Leaderboard returns the top users by total points, wins breaking ties.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var users []User
	err := s.db.WithContext(ctx).
		Order("total_points DESC").
		Order("wins DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	return users, nil
}

// Noop stands in for the sink when no database is configured; finished
// matches are simply not recorded.
type Noop struct{}

func (Noop) Record(context.Context, match.Record) error { return nil }
