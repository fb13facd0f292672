package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type therapistRepo struct {
	db database.DBTX
}

func NewTherapistRepository(db database.DBTX) domain.TherapistRepository {
	return &therapistRepo{db: db}
}

// GetPendingByEmail locks the pending row so two promotions cannot both consume it
func (r *therapistRepo) GetPendingByEmail(ctx context.Context, email string) (*domain.PendingTherapist, error) {
	query := `SELECT id, email, display_name, credentials, bio, specialties, license_state, hourly_rate_cents, created_at
              FROM pending_therapists WHERE email = $1 FOR UPDATE`
	var p domain.PendingTherapist
	err := r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)).Scan(
		&p.ID, &p.Email, &p.DisplayName, &p.Credentials, &p.Bio, &p.Specialties,
		&p.LicenseState, &p.HourlyRateCent, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending therapist: %w", err)
	}
	return &p, nil
}

func (r *therapistRepo) DeletePending(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pending_therapists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending therapist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *therapistRepo) GetByUserID(ctx context.Context, userID string) (*domain.Therapist, error) {
	query := `SELECT id, user_id, display_name, credentials, bio, specialties, license_state,
                     hourly_rate_cents, is_accepting_new, created_at, updated_at
              FROM therapists WHERE user_id = $1`
	var t domain.Therapist
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&t.ID, &t.UserID, &t.DisplayName, &t.Credentials, &t.Bio, &t.Specialties, &t.LicenseState,
		&t.HourlyRateCent, &t.IsAcceptingNew, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get therapist: %w", err)
	}
	return &t, nil
}

func (r *therapistRepo) Create(ctx context.Context, t *domain.Therapist) error {
	query := `INSERT INTO therapists (id, user_id, display_name, credentials, bio, specialties, license_state,
                                      hourly_rate_cents, is_accepting_new, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.UserID, t.DisplayName, t.Credentials, t.Bio, t.Specialties, t.LicenseState,
		t.HourlyRateCent, t.IsAcceptingNew, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("therapist profile already exists for user %s: %w", t.UserID, err)
		}
		return fmt.Errorf("failed to create therapist: %w", err)
	}
	return nil
}
