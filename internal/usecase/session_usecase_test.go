package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/internal/usecase"
)

func TestOnSessionCreated(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	t.Run("duplicate delivery records one session", func(t *testing.T) {
		db := newMemDB()
		db.seedUser(domain.User{ID: "u-1", ExternalID: "user_1", Email: "a@acme.com", Role: domain.RoleEmployee})
		uc := usecase.NewSessionUsecase(db)
		in := domain.SessionCreatedInput{
			SessionID:      "sess_1",
			ExternalUserID: "user_1",
			CreatedAt:      createdAt,
			Metadata:       json.RawMessage(`{"client_id":"client_1"}`),
		}

		require.NoError(t, uc.OnSessionCreated(ctx, in))
		require.NoError(t, uc.OnSessionCreated(ctx, in))

		sessions := db.snapshot().sessions
		require.Len(t, sessions, 1)
		s := sessions["sess_1"]
		assert.Equal(t, "u-1", s.UserID)
		assert.Equal(t, domain.SessionStatusCreated, s.Status)
		assert.True(t, createdAt.Equal(s.CreatedAt))
		assert.Nil(t, s.EndedAt)
	})

	t.Run("unknown user is retryable", func(t *testing.T) {
		db := newMemDB()
		uc := usecase.NewSessionUsecase(db)

		err := uc.OnSessionCreated(ctx, domain.SessionCreatedInput{SessionID: "sess_1", ExternalUserID: "user_missing"})

		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindUserNotFound))
		assert.True(t, domain.IsRetryable(err))
		assert.Empty(t, db.snapshot().sessions)

		res := domain.FromError(domain.EventSessionCreated, err)
		assert.Equal(t, domain.ResultRetryable, res.Status)
		assert.Equal(t, string(domain.KindUserNotFound), res.Code)
	})
}

func TestOnSessionEnded(t *testing.T) {
	ctx := context.Background()
	endedAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	t.Run("unknown session is a no-op", func(t *testing.T) {
		db := newMemDB()
		uc := usecase.NewSessionUsecase(db)

		assert.NoError(t, uc.OnSessionEnded(ctx, "sess_missing", endedAt, domain.SessionStatusEnded))
		assert.Empty(t, db.snapshot().sessions)
	})

	t.Run("marks status and end time", func(t *testing.T) {
		db := newMemDB()
		db.seedUser(domain.User{ID: "u-1", ExternalID: "user_1", Email: "a@acme.com"})
		uc := usecase.NewSessionUsecase(db)
		require.NoError(t, uc.OnSessionCreated(ctx, domain.SessionCreatedInput{SessionID: "sess_1", ExternalUserID: "user_1"}))

		require.NoError(t, uc.OnSessionEnded(ctx, "sess_1", endedAt, domain.SessionStatusRemoved))

		s := db.snapshot().sessions["sess_1"]
		assert.Equal(t, domain.SessionStatusRemoved, s.Status)
		require.NotNil(t, s.EndedAt)
		assert.True(t, endedAt.Equal(*s.EndedAt))
	})
}
