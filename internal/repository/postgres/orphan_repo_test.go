package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintherapy-backend/internal/domain"
)

var orphanCols = []string{"id", "external_id", "email", "reason", "attempts", "last_error", "resolved_at", "created_at", "updated_at"}

func TestOrphanRepo_ListUnresolved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewOrphanRepository(mock)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM orphaned_identities\s+WHERE resolved_at IS NULL`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(orphanCols).
			AddRow("o-1", "user_1", "a@example.com", "signup rolled back", 3, "timeout", (*time.Time)(nil), now, now).
			AddRow("o-2", "user_2", "", "signup rolled back", 1, "", (*time.Time)(nil), now, now))

	// out-of-range limits fall back to the default page
	orphans, err := repo.ListUnresolved(context.Background(), 10000)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "user_1", orphans[0].ExternalID)
	assert.Equal(t, 3, orphans[0].Attempts)
	assert.Nil(t, orphans[1].ResolvedAt)

	mock.ExpectQuery(`FROM orphaned_identities`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(orphanCols))
	orphans, err = repo.ListUnresolved(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, orphans)
	assert.Empty(t, orphans)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrphanRepo_RecordAndResolve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewOrphanRepository(mock)
	ctx := context.Background()

	now := time.Now().UTC()
	orphan := &domain.OrphanedIdentity{
		ID: "o-new", ExternalID: "user_1", Reason: "signup rolled back", Attempts: 3, LastError: "503", CreatedAt: now,
	}
	// an existing row for the external id keeps its id
	mock.ExpectQuery(`ON CONFLICT \(external_id\) DO UPDATE`).
		WithArgs("o-new", "user_1", "", "signup rolled back", 3, "503", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("o-1"))
	require.NoError(t, repo.Record(ctx, orphan))
	assert.Equal(t, "o-1", orphan.ID)

	mock.ExpectQuery(`WHERE id = \$1`).WithArgs("o-9").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, "o-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectExec(`SET resolved_at = \$2`).WithArgs("o-9", now).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkResolved(ctx, "o-9", now), domain.ErrNotFound)

	mock.ExpectExec(`SET attempts = attempts \+ 1`).WithArgs("o-1", "still failing").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.IncrementAttempts(ctx, "o-1", "still failing"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
