package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
)

type sessionUsecase struct {
	tx  domain.Transactor
	now func() time.Time
}

func NewSessionUsecase(tx domain.Transactor) domain.SessionUsecase {
	return &sessionUsecase{tx: tx, now: time.Now}
}

// OnSessionCreated records the session once. A session for a user this service has
// not seen yet is retryable: user.created may simply not have arrived.
func (u *sessionUsecase) OnSessionCreated(ctx context.Context, in domain.SessionCreatedInput) error {
	return u.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxStore) error {
		user, err := tx.Users().GetByExternalID(ctx, in.ExternalUserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound(in.ExternalUserID)
		}
		if err != nil {
			return err
		}

		existing, err := notFound(tx.Sessions().GetByExternalID(ctx, in.SessionID))
		if err != nil {
			return err
		}
		if existing != nil {
			logger.Log.Debug("Session already recorded", "session_id", in.SessionID)
			return nil
		}

		createdAt := in.CreatedAt
		if createdAt.IsZero() {
			createdAt = u.now().UTC()
		}
		inserted, err := tx.Sessions().Insert(ctx, &domain.UserSession{
			ID:                uuid.NewString(),
			UserID:            user.ID,
			ExternalSessionID: in.SessionID,
			Status:            domain.SessionStatusCreated,
			CreatedAt:         createdAt,
			Metadata:          in.Metadata,
		})
		if err != nil {
			return err
		}
		if !inserted {
			logger.Log.Debug("Concurrent delivery already recorded session", "session_id", in.SessionID)
		}
		return nil
	})
}

// OnSessionEnded is a no-op for sessions that were never recorded
func (u *sessionUsecase) OnSessionEnded(ctx context.Context, sessionID string, endedAt time.Time, status domain.SessionStatus) error {
	if endedAt.IsZero() {
		endedAt = u.now().UTC()
	}
	return u.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxStore) error {
		rows, err := tx.Sessions().MarkEnded(ctx, sessionID, status, endedAt)
		if err != nil {
			return err
		}
		if rows == 0 {
			logger.Log.Debug("Session end for unknown session ignored", "session_id", sessionID, "status", status)
		}
		return nil
	})
}
