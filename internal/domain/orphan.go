package domain

import (
	"context"
	"time"
)

// OrphanedIdentity is a provider account whose compensating delete could not be
// completed. Rows stay unresolved until a later delete succeeds.
type OrphanedIdentity struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id"`
	Email      string     `json:"email,omitempty"`
	Reason     string     `json:"reason"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type OrphanRepository interface {
	// Record inserts or refreshes the row for the external id and clears resolved_at
	Record(ctx context.Context, orphan *OrphanedIdentity) error
	GetByID(ctx context.Context, id string) (*OrphanedIdentity, error)
	ListUnresolved(ctx context.Context, limit int) ([]OrphanedIdentity, error)
	MarkResolved(ctx context.Context, id string, at time.Time) error
	IncrementAttempts(ctx context.Context, id, lastError string) error
}

type OrphanUsecase interface {
	ListUnresolved(ctx context.Context, limit int) ([]OrphanedIdentity, error)
	Retry(ctx context.Context, id string) (*OrphanedIdentity, error)
	Sweep(ctx context.Context) (resolved int, err error)
}
