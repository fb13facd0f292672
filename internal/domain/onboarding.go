package domain

import (
	"context"
	"encoding/json"
	"time"
)

// UserOnboarding holds the answers captured by the signup questionnaire.
// One row per user; Version increases on every upsert.
type UserOnboarding struct {
	UserID    string          `json:"user_id"`
	Answers   json.RawMessage `json:"answers"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OnboardingRepository interface {
	Upsert(ctx context.Context, userID string, answers json.RawMessage) (*UserOnboarding, error)
}
