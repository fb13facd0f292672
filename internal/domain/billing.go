package domain

import (
	"context"
	"time"
)

type BillingCustomer struct {
	UserID     string    `json:"user_id"`
	CustomerID string    `json:"customer_id"` // payment provider customer id
	CreatedAt  time.Time `json:"created_at"`
}

type BillingRepository interface {
	GetByUserID(ctx context.Context, userID string) (*BillingCustomer, error)
	// Create ignores a second row for the same user
	Create(ctx context.Context, customer *BillingCustomer) error
}

// BillingProvisioner creates the customer record at the payment provider.
// idempotencyKey must be stable for a given user.
type BillingProvisioner interface {
	CreateCustomer(ctx context.Context, user *User, idempotencyKey string) (customerID string, err error)
}
