package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

const userColumns = `id, external_id, email, first_name, last_name, image_url, role,
	employer_id, is_active, last_active_at, created_at, updated_at`

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) domain.UserRepository {
	return &userRepo{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.FirstName, &user.LastName, &user.ImageURL, &user.Role,
		&user.EmployerID, &user.IsActive, &user.LastActiveAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *userRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, externalID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user by external id: %w", err)
	}
	return user, err
}

func (r *userRepo) LockByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1 FOR UPDATE`
	user, err := scanUser(r.db.QueryRow(ctx, query, externalID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to lock user by external id: %w", err)
	}
	return user, err
}

func (r *userRepo) LockByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 FOR UPDATE`
	user, err := scanUser(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to lock user by email: %w", err)
	}
	return user, err
}

// CreateIfAbsent relies on the unique external_id and email constraints; a
// concurrent insert of the same identity turns into created=false.
func (r *userRepo) CreateIfAbsent(ctx context.Context, user *domain.User) (bool, error) {
	query := `INSERT INTO users (id, external_id, email, first_name, last_name, image_url, role, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
              ON CONFLICT DO NOTHING
              RETURNING is_active`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.ExternalID, domain.NormalizeEmail(user.Email), user.FirstName, user.LastName,
		user.ImageURL, user.Role, user.CreatedAt,
	).Scan(&user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	user.UpdatedAt = user.CreatedAt
	return true, nil
}

// UpdateProfile writes provider-owned fields only. Role is never part of an update.
func (r *userRepo) UpdateProfile(ctx context.Context, userID string, profile domain.UserProfile) (*domain.User, error) {
	query := `UPDATE users
              SET email = $2, first_name = $3, last_name = $4, image_url = $5, updated_at = NOW()
              WHERE id = $1
              RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query,
		userID, domain.NormalizeEmail(profile.Email), profile.FirstName, profile.LastName, profile.ImageURL,
	))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("email %s already belongs to another user: %w", profile.Email, err)
		}
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

func (r *userRepo) Relink(ctx context.Context, userID, externalID string, profile domain.UserProfile) (*domain.User, error) {
	query := `UPDATE users
              SET external_id = $2, email = $3, first_name = $4, last_name = $5, image_url = $6, updated_at = NOW()
              WHERE id = $1
              RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query,
		userID, externalID, domain.NormalizeEmail(profile.Email), profile.FirstName, profile.LastName, profile.ImageURL,
	))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to relink user: %w", err)
	}
	return user, nil
}

func (r *userRepo) SetEmployer(ctx context.Context, userID, employerID string) error {
	query := `UPDATE users SET employer_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, employerID)
	if err != nil {
		return fmt.Errorf("failed to link employer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) Deactivate(ctx context.Context, externalID string) (int64, error) {
	query := `UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE external_id = $1`
	tag, err := r.db.Exec(ctx, query, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *userRepo) TouchActivity(ctx context.Context, externalID string, at time.Time) (int64, error) {
	query := `UPDATE users SET last_active_at = $2 WHERE external_id = $1`
	tag, err := r.db.Exec(ctx, query, externalID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to touch user activity: %w", err)
	}
	return tag.RowsAffected(), nil
}
