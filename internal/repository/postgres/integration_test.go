//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/internal/repository/postgres"
	"fintherapy-backend/internal/usecase"
	"fintherapy-backend/pkg/database"
	"fintherapy-backend/pkg/rolepolicy"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("identity_test"),
		tcpostgres.WithUsername("identity"),
		tcpostgres.WithPassword("identity_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(connStr))

	pool, err := database.NewPostgresConnection(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createdPayload(extID, email, role string) *domain.UserPayload {
	return &domain.UserPayload{
		ID:                    extID,
		PrimaryEmailAddressID: "idn_1",
		EmailAddresses: []domain.EmailAddress{{
			ID:           "idn_1",
			EmailAddress: email,
			Verification: &domain.EmailVerification{Status: "verified"},
		}},
		FirstName:      "Ada",
		UnsafeMetadata: domain.UserMetadataClaims{Role: role},
	}
}

func TestIntegration_ConcurrentCreatedDeliveries(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	tx := postgres.NewTransactor(pool)
	syncUC := usecase.NewUserSyncUsecase(usecase.UserSyncDeps{
		Transactor: tx,
		Resolver:   usecase.NewRoleResolver(rolepolicy.New(nil, nil), nil),
	})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = syncUC.SyncUser(ctx, domain.EventUserCreated, createdPayload("user_race", "race@example.com", ""))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE external_id = 'user_race'`).Scan(&count))
	assert.Equal(t, 1, count)

	// a later claim for a different role does not change the stored one
	user, err := syncUC.SyncUser(ctx, domain.EventUserUpdated, createdPayload("user_race", "race@example.com", "super_admin"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleIndividualConsumer, user.Role)
}

func TestIntegration_SessionInsertIsIdempotent(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	users := postgres.NewUserRepository(pool)
	sessions := postgres.NewSessionRepository(pool)

	user := &domain.User{ID: "6f1c1c36-7d8e-4a0c-9a57-9f1f3c2b1a01", ExternalID: "user_s", Email: "s@example.com",
		Role: domain.RoleEmployee, CreatedAt: time.Now().UTC()}
	created, err := users.CreateIfAbsent(ctx, user)
	require.NoError(t, err)
	require.True(t, created)

	s := &domain.UserSession{ID: "6f1c1c36-7d8e-4a0c-9a57-9f1f3c2b1a02", UserID: user.ID, ExternalSessionID: "sess_1",
		Status: domain.SessionStatusCreated, CreatedAt: time.Now().UTC()}
	inserted, err := sessions.Insert(ctx, s)
	require.NoError(t, err)
	assert.True(t, inserted)

	s.ID = "6f1c1c36-7d8e-4a0c-9a57-9f1f3c2b1a03"
	inserted, err = sessions.Insert(ctx, s)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := sessions.MarkEnded(ctx, "sess_1", domain.SessionStatusEnded, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
}
