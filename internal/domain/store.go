package domain

import "context"

// Store exposes the repositories bound to one transaction
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Therapists() TherapistRepository
	Employers() EmployerRepository
	Onboarding() OnboardingRepository
}

// TxStore is a Store inside an open transaction.
// Savepoint runs fn in a nested transaction: when fn fails only its own writes
// are undone and the outer transaction stays usable.
type TxStore interface {
	Store
	Savepoint(ctx context.Context, fn func(tx Store) error) error
}

// Transactor runs fn in a read-committed transaction, committing when fn returns nil
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}
