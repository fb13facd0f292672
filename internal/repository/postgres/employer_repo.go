package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type employerRepo struct {
	db database.DBTX
}

func NewEmployerRepository(db database.DBTX) domain.EmployerRepository {
	return &employerRepo{db: db}
}

func (r *employerRepo) GetEmployerByName(ctx context.Context, name string) (*domain.Employer, error) {
	query := `SELECT id, name, subsidy_percent, session_credits_per_employee, is_active, created_at, updated_at
              FROM employers WHERE name = $1`
	var e domain.Employer
	err := r.db.QueryRow(ctx, query, name).Scan(
		&e.ID, &e.Name, &e.SubsidyPercent, &e.SessionCreditsPerEmployee, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get employer: %w", err)
	}
	return &e, nil
}

func (r *employerRepo) CreateEmployer(ctx context.Context, e *domain.Employer) (bool, error) {
	query := `INSERT INTO employers (id, name, subsidy_percent, session_credits_per_employee, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $6)
              ON CONFLICT (name) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, e.ID, e.Name, e.SubsidyPercent, e.SessionCreditsPerEmployee, e.IsActive, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create employer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *employerRepo) GetGroup(ctx context.Context, employerID, name, groupType string) (*domain.SponsoredGroup, error) {
	query := `SELECT id, employer_id, name, group_type, session_credits, created_at
              FROM sponsored_groups WHERE employer_id = $1 AND name = $2 AND group_type = $3`
	var g domain.SponsoredGroup
	err := r.db.QueryRow(ctx, query, employerID, name, groupType).Scan(
		&g.ID, &g.EmployerID, &g.Name, &g.GroupType, &g.SessionCredits, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sponsored group: %w", err)
	}
	return &g, nil
}

func (r *employerRepo) CreateGroup(ctx context.Context, g *domain.SponsoredGroup) (bool, error) {
	query := `INSERT INTO sponsored_groups (id, employer_id, name, group_type, session_credits, created_at)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (employer_id, name, group_type) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, g.ID, g.EmployerID, g.Name, g.GroupType, g.SessionCredits, g.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create sponsored group: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *employerRepo) GetMembership(ctx context.Context, userID, groupID string) (*domain.SponsoredGroupMember, error) {
	query := `SELECT id, user_id, group_id, is_active, joined_at
              FROM sponsored_group_members WHERE user_id = $1 AND group_id = $2`
	var m domain.SponsoredGroupMember
	err := r.db.QueryRow(ctx, query, userID, groupID).Scan(&m.ID, &m.UserID, &m.GroupID, &m.IsActive, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group membership: %w", err)
	}
	return &m, nil
}

func (r *employerRepo) CreateMembership(ctx context.Context, m *domain.SponsoredGroupMember) (bool, error) {
	query := `INSERT INTO sponsored_group_members (id, user_id, group_id, is_active, joined_at)
              VALUES ($1, $2, $3, $4, $5)
              ON CONFLICT (user_id, group_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, m.ID, m.UserID, m.GroupID, m.IsActive, m.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create group membership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
