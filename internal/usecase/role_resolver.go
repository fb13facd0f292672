package usecase

import (
	"context"
	"errors"
	"fmt"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
	"fintherapy-backend/pkg/security"
)

// RoleResolver decides the role of a brand-new user from the role claimed at signup.
// It is never consulted for users that already exist.
type RoleResolver struct {
	policy  domain.RolePolicy
	metrics domain.MetricsRecorder
}

func NewRoleResolver(policy domain.RolePolicy, metrics domain.MetricsRecorder) *RoleResolver {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &RoleResolver{policy: policy, metrics: metrics}
}

// Resolve never fails: any lookup error downgrades to individual_consumer.
// The pending-therapist lookup runs in a savepoint so a failed query does not
// poison the surrounding transaction.
func (r *RoleResolver) Resolve(ctx context.Context, tx domain.TxStore, email, requested string) (role domain.Role) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fallback(email, fmt.Errorf("panic during role resolution: %v", rec))
			role = domain.RoleIndividualConsumer
		}
	}()

	role, err := r.resolve(ctx, tx, domain.NormalizeEmail(email), requested)
	if err != nil {
		r.fallback(email, err)
		return domain.RoleIndividualConsumer
	}
	return role
}

func (r *RoleResolver) resolve(ctx context.Context, tx domain.TxStore, email, requested string) (domain.Role, error) {
	claimed, _ := domain.ParseRole(requested)

	switch claimed {
	case domain.RoleTherapist:
		pending := false
		err := tx.Savepoint(ctx, func(s domain.Store) error {
			_, err := s.Therapists().GetPendingByEmail(ctx, email)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			pending = true
			return nil
		})
		if err != nil {
			return "", err
		}
		if pending {
			return domain.RoleTherapist, nil
		}
		logger.Log.Info("Therapist role requested without pending profile, downgrading", "email", security.MaskEmail(email))
		return domain.RoleEmployee, nil

	case domain.RoleEmployerAdmin:
		if r.policy.IsEmployerAdmin(email) {
			return domain.RoleEmployerAdmin, nil
		}
		return domain.RoleEmployee, nil
	}

	if _, ok := r.policy.EmployerFor(email); ok {
		return domain.RoleEmployee, nil
	}
	return domain.RoleIndividualConsumer, nil
}

func (r *RoleResolver) fallback(email string, err error) {
	r.metrics.IncEnrichmentFailure("role_resolution")
	resolveErr := domain.NewSyncError(domain.KindRoleValidationFailed, "role resolution failed, using individual_consumer", err)
	logger.Log.Warn("Role resolution failed", "email", security.MaskEmail(email), "error", resolveErr)
}
