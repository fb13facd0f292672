package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/database"
)

type transactor struct {
	db database.TxBeginner
}

// NewTransactor returns a Transactor over a pool (or anything that can BeginTx)
func NewTransactor(db database.TxBeginner) domain.Transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newTxStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func newTxStore(tx pgx.Tx) *txStore {
	return &txStore{tx: tx}
}

func (s *txStore) Users() domain.UserRepository            { return NewUserRepository(s.tx) }
func (s *txStore) Sessions() domain.SessionRepository      { return NewSessionRepository(s.tx) }
func (s *txStore) Therapists() domain.TherapistRepository  { return NewTherapistRepository(s.tx) }
func (s *txStore) Employers() domain.EmployerRepository    { return NewEmployerRepository(s.tx) }
func (s *txStore) Onboarding() domain.OnboardingRepository { return NewOnboardingRepository(s.tx) }

// Savepoint uses pgx pseudo nested transactions (SAVEPOINT / RELEASE / ROLLBACK TO)
func (s *txStore) Savepoint(ctx context.Context, fn func(tx domain.Store) error) error {
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	if err := fn(newTxStore(sp)); err != nil {
		return err
	}
	return sp.Commit(ctx)
}
