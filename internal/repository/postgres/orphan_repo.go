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

const orphanColumns = `id, external_id, email, reason, attempts, last_error, resolved_at, created_at, updated_at`

type orphanRepo struct {
	db database.DBTX
}

func NewOrphanRepository(db database.DBTX) domain.OrphanRepository {
	return &orphanRepo{db: db}
}

func scanOrphan(row pgx.Row) (*domain.OrphanedIdentity, error) {
	var o domain.OrphanedIdentity
	err := row.Scan(&o.ID, &o.ExternalID, &o.Email, &o.Reason, &o.Attempts, &o.LastError,
		&o.ResolvedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Record keeps one row per external id. A repeated failure reopens a resolved row.
func (r *orphanRepo) Record(ctx context.Context, o *domain.OrphanedIdentity) error {
	query := `
		INSERT INTO orphaned_identities (id, external_id, email, reason, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			attempts = orphaned_identities.attempts + EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			resolved_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, o.ID, o.ExternalID, o.Email, o.Reason, o.Attempts, o.LastError, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to record orphaned identity: %w", err)
	}
	return nil
}

func (r *orphanRepo) GetByID(ctx context.Context, id string) (*domain.OrphanedIdentity, error) {
	query := `SELECT ` + orphanColumns + ` FROM orphaned_identities WHERE id = $1`
	o, err := scanOrphan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get orphaned identity: %w", err)
	}
	return o, nil
}

func (r *orphanRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.OrphanedIdentity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + orphanColumns + ` FROM orphaned_identities
              WHERE resolved_at IS NULL
              ORDER BY created_at ASC
              LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned identities: %w", err)
	}
	defer rows.Close()

	results := []domain.OrphanedIdentity{}
	for rows.Next() {
		o, err := scanOrphan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan orphaned identity: %w", err)
		}
		results = append(results, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphaned identities: %w", err)
	}
	return results, nil
}

func (r *orphanRepo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE orphaned_identities SET resolved_at = $2, updated_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to resolve orphaned identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orphanRepo) IncrementAttempts(ctx context.Context, id, lastError string) error {
	query := `UPDATE orphaned_identities SET attempts = attempts + 1, last_error = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("failed to update orphaned identity: %w", err)
	}
	return nil
}
