package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db database.DBTX) domain.SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) GetByExternalID(ctx context.Context, externalSessionID string) (*domain.UserSession, error) {
	query := `SELECT id, user_id, external_session_id, status, created_at, ended_at, metadata
              FROM user_sessions WHERE external_session_id = $1`
	var s domain.UserSession
	err := r.db.QueryRow(ctx, query, externalSessionID).Scan(
		&s.ID, &s.UserID, &s.ExternalSessionID, &s.Status, &s.CreatedAt, &s.EndedAt, &s.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// Insert is idempotent on external_session_id
func (r *sessionRepo) Insert(ctx context.Context, s *domain.UserSession) (bool, error) {
	metadata := s.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	query := `INSERT INTO user_sessions (id, user_id, external_session_id, status, created_at, metadata)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (external_session_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, s.ID, s.UserID, s.ExternalSessionID, s.Status, s.CreatedAt, metadata)
	if err != nil {
		return false, fmt.Errorf("failed to insert session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *sessionRepo) MarkEnded(ctx context.Context, externalSessionID string, status domain.SessionStatus, endedAt time.Time) (int64, error) {
	query := `UPDATE user_sessions SET status = $2, ended_at = $3 WHERE external_session_id = $1`
	tag, err := r.db.Exec(ctx, query, externalSessionID, status, endedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to end session: %w", err)
	}
	return tag.RowsAffected(), nil
}
