package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/apperror"
	"fintherapy-backend/pkg/logger"
)

const orphanSweepBatch = 50

type orphanUsecase struct {
	repo    domain.OrphanRepository
	idp     domain.IdentityProvider
	metrics domain.MetricsRecorder
	now     func() time.Time
}

func NewOrphanUsecase(repo domain.OrphanRepository, idp domain.IdentityProvider, metrics domain.MetricsRecorder) domain.OrphanUsecase {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &orphanUsecase{repo: repo, idp: idp, metrics: metrics, now: time.Now}
}

func (u *orphanUsecase) ListUnresolved(ctx context.Context, limit int) ([]domain.OrphanedIdentity, error) {
	return u.repo.ListUnresolved(ctx, limit)
}

// Retry deletes the remote account again. A 404 from the provider resolves the record.
func (u *orphanUsecase) Retry(ctx context.Context, id string) (*domain.OrphanedIdentity, error) {
	orphan, err := u.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.NotFound("Orphaned identity not found")
	}
	if err != nil {
		return nil, err
	}
	if orphan.ResolvedAt != nil {
		return orphan, nil
	}

	err = u.idp.DeleteUser(ctx, orphan.ExternalID)
	if err != nil && !errors.Is(err, domain.ErrRemoteUserNotFound) {
		if incErr := u.repo.IncrementAttempts(ctx, orphan.ID, err.Error()); incErr != nil {
			logger.Log.Error("Failed to record orphan retry", "orphan_id", orphan.ID, "error", incErr)
		}
		u.metrics.IncCompensation(compensationExhausted)
		return nil, apperror.New(http.StatusBadGateway, "Identity provider delete failed", fmt.Errorf("delete remote user %s: %w", orphan.ExternalID, err))
	}

	now := u.now().UTC()
	if err := u.repo.MarkResolved(ctx, orphan.ID, now); err != nil {
		return nil, err
	}
	u.metrics.IncCompensation(compensationSucceeded)
	orphan.ResolvedAt = &now
	orphan.Attempts++
	logger.Log.Info("Orphaned identity resolved", "orphan_id", orphan.ID, "external_id", orphan.ExternalID)
	return orphan, nil
}

// Sweep retries one batch of unresolved orphans; individual failures do not stop the batch
func (u *orphanUsecase) Sweep(ctx context.Context) (int, error) {
	orphans, err := u.repo.ListUnresolved(ctx, orphanSweepBatch)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, o := range orphans {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if _, err := u.Retry(ctx, o.ID); err != nil {
			logger.Log.Warn("Orphan sweep retry failed", "orphan_id", o.ID, "external_id", o.ExternalID, "error", err)
			continue
		}
		resolved++
	}
	if len(orphans) > 0 {
		logger.Log.Info("Orphan sweep finished", "checked", len(orphans), "resolved", resolved)
	}
	return resolved, nil
}
