package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type onboardingRepo struct {
	db database.DBTX
}

func NewOnboardingRepository(db database.DBTX) domain.OnboardingRepository {
	return &onboardingRepo{db: db}
}

// Upsert replaces the answers and bumps version on every call
func (r *onboardingRepo) Upsert(ctx context.Context, userID string, answers json.RawMessage) (*domain.UserOnboarding, error) {
	query := `
		INSERT INTO user_onboarding (user_id, answers, version, created_at, updated_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			answers = EXCLUDED.answers,
			version = user_onboarding.version + 1,
			updated_at = NOW()
		RETURNING user_id, answers, version, created_at, updated_at
	`
	var o domain.UserOnboarding
	err := r.db.QueryRow(ctx, query, userID, []byte(answers)).Scan(
		&o.UserID, &o.Answers, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert onboarding: %w", err)
	}
	return &o, nil
}
