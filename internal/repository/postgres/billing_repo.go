package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type billingRepo struct {
	db database.DBTX
}

func NewBillingRepository(db database.DBTX) domain.BillingRepository {
	return &billingRepo{db: db}
}

func (r *billingRepo) GetByUserID(ctx context.Context, userID string) (*domain.BillingCustomer, error) {
	query := `SELECT user_id, customer_id, created_at FROM billing_customers WHERE user_id = $1`
	var c domain.BillingCustomer
	err := r.db.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.CustomerID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get billing customer: %w", err)
	}
	return &c, nil
}

func (r *billingRepo) Create(ctx context.Context, c *domain.BillingCustomer) error {
	query := `INSERT INTO billing_customers (user_id, customer_id, created_at)
              VALUES ($1, $2, $3)
              ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, c.UserID, c.CustomerID, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to create billing customer: %w", err)
	}
	return nil
}
