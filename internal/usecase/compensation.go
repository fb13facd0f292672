package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
)

const (
	compensationSucceeded = "succeeded"
	compensationExhausted = "exhausted"
)

// CompensatingAction undoes a side effect already committed outside the database
type CompensatingAction struct {
	Name string
	Run  func(ctx context.Context) error
}

// CompensationSubject identifies the remote account a rollback is about
type CompensationSubject struct {
	ExternalID string
	Email      string
}

// Compensator executes post-rollback action lists with its own bounded retry policy.
// It is separate from the database transaction: it only runs after the rollback.
type Compensator struct {
	idp            domain.IdentityProvider
	orphans        domain.OrphanRepository
	audit          domain.AuditLogger
	metrics        domain.MetricsRecorder
	maxAttempts    int
	initialBackoff time.Duration
	now            func() time.Time
}

type CompensatorConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewCompensator(idp domain.IdentityProvider, orphans domain.OrphanRepository, audit domain.AuditLogger, metrics domain.MetricsRecorder, cfg CompensatorConfig) *Compensator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &Compensator{
		idp:            idp,
		orphans:        orphans,
		audit:          audit,
		metrics:        metrics,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		now:            time.Now,
	}
}

// DeleteRemoteUser is the compensating action for a failed signup.
// An account that is already gone counts as deleted.
func (c *Compensator) DeleteRemoteUser(externalID string) CompensatingAction {
	return CompensatingAction{
		Name: "delete_remote_user",
		Run: func(ctx context.Context) error {
			err := c.idp.DeleteUser(ctx, externalID)
			if errors.Is(err, domain.ErrRemoteUserNotFound) {
				return nil
			}
			return err
		},
	}
}

// Execute runs every action and returns cause unchanged when all of them succeed.
// When an action exhausts its retries the result is an OrphanedRemoteAccount error wrapping cause.
func (c *Compensator) Execute(ctx context.Context, subject CompensationSubject, actions []CompensatingAction, cause error) error {
	// The request may already be cancelled; the cleanup must still run
	ctx = context.WithoutCancel(ctx)

	for _, action := range actions {
		attempts, err := c.runWithRetry(ctx, action)
		if err != nil {
			return c.orphaned(ctx, subject, action, attempts, err, cause)
		}
		c.metrics.IncCompensation(compensationSucceeded)
		if c.audit != nil {
			c.audit.CompensationSucceeded(ctx, subject.ExternalID, attempts)
		}
		logger.Log.Warn("Compensating action completed", "action", action.Name, "external_id", subject.ExternalID, "attempts", attempts, "cause", cause)
	}
	return cause
}

func (c *Compensator) runWithRetry(ctx context.Context, action CompensatingAction) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		err := action.Run(ctx)
		if err != nil {
			logger.Log.Warn("Compensating action attempt failed", "action", action.Name, "attempt", attempts, "error", err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx))
	return attempts, err
}

func (c *Compensator) orphaned(ctx context.Context, subject CompensationSubject, action CompensatingAction, attempts int, lastErr, cause error) error {
	c.metrics.IncCompensation(compensationExhausted)

	if c.orphans != nil {
		now := c.now().UTC()
		record := &domain.OrphanedIdentity{
			ID:         uuid.NewString(),
			ExternalID: subject.ExternalID,
			Email:      subject.Email,
			Reason:     fmt.Sprintf("%s failed after signup rollback: %v", action.Name, cause),
			Attempts:   attempts,
			LastError:  lastErr.Error(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := c.orphans.Record(ctx, record); err != nil {
			logger.Log.Error("Failed to persist orphaned identity", "external_id", subject.ExternalID, "error", err)
		}
	}
	if c.audit != nil {
		c.audit.OrphanedRemoteAccount(ctx, subject.ExternalID, subject.Email, attempts, lastErr)
	}
	logger.Log.Error("CRITICAL: orphaned remote account requires manual cleanup",
		"external_id", subject.ExternalID, "action", action.Name, "attempts", attempts, "error", lastErr, "cause", cause)

	return domain.NewSyncError(domain.KindOrphanedRemoteAccount,
		fmt.Sprintf("remote account %s could not be removed after %d attempts", subject.ExternalID, attempts), cause)
}
