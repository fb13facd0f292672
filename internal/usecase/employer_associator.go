package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
)

// EmployerAssociator links employees to their employer and sponsored group.
// Every step is an enrichment: failures are logged and never abort the caller's transaction.
type EmployerAssociator struct {
	policy  domain.RolePolicy
	metrics domain.MetricsRecorder
	now     func() time.Time
}

func NewEmployerAssociator(policy domain.RolePolicy, metrics domain.MetricsRecorder) *EmployerAssociator {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &EmployerAssociator{policy: policy, metrics: metrics, now: time.Now}
}

// Associate mutates user.EmployerID when the link succeeds
func (a *EmployerAssociator) Associate(ctx context.Context, tx domain.TxStore, user *domain.User, groupName string) {
	if user.Role != domain.RoleEmployee {
		return
	}
	employerName, ok := a.policy.EmployerFor(user.Email)
	if !ok {
		return
	}

	var employer *domain.Employer
	err := tx.Savepoint(ctx, func(s domain.Store) error {
		e, err := a.findOrCreateEmployer(ctx, s.Employers(), employerName)
		if err != nil {
			return err
		}
		if err := s.Users().SetEmployer(ctx, user.ID, e.ID); err != nil {
			return fmt.Errorf("link user to employer: %w", err)
		}
		employer = e
		return nil
	})
	if err != nil {
		a.metrics.IncEnrichmentFailure("employer_link")
		logger.Log.Error("Employer association failed", "user_id", user.ID, "employer", employerName, "error", err)
		return
	}
	user.EmployerID = &employer.ID

	if groupName == "" {
		return
	}
	err = tx.Savepoint(ctx, func(s domain.Store) error {
		group, err := a.findOrCreateGroup(ctx, s.Employers(), employer.ID, groupName)
		if err != nil {
			return err
		}
		return a.ensureMembership(ctx, s.Employers(), user.ID, group.ID)
	})
	if err != nil {
		a.metrics.IncEnrichmentFailure("sponsored_group")
		logger.Log.Error("Sponsored group association failed", "user_id", user.ID, "group", groupName, "error", err)
	}
}

func (a *EmployerAssociator) findOrCreateEmployer(ctx context.Context, repo domain.EmployerRepository, name string) (*domain.Employer, error) {
	existing, err := notFound(repo.GetEmployerByName(ctx, name))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	subsidy := a.policy.Subsidy()
	employer := &domain.Employer{
		ID:                        uuid.NewString(),
		Name:                      name,
		SubsidyPercent:            subsidy.SubsidyPercent,
		SessionCreditsPerEmployee: subsidy.SessionCreditsPerEmployee,
		IsActive:                  true,
		CreatedAt:                 a.now().UTC(),
	}
	employer.UpdatedAt = employer.CreatedAt
	created, err := repo.CreateEmployer(ctx, employer)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Log.Info("Employer created during signup", "employer_id", employer.ID, "name", name)
		return employer, nil
	}
	// Lost the insert race, the winner's row is visible now
	return repo.GetEmployerByName(ctx, name)
}

func (a *EmployerAssociator) findOrCreateGroup(ctx context.Context, repo domain.EmployerRepository, employerID, name string) (*domain.SponsoredGroup, error) {
	existing, err := notFound(repo.GetGroup(ctx, employerID, name, domain.GroupTypeEmployerSponsored))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	group := &domain.SponsoredGroup{
		ID:             uuid.NewString(),
		EmployerID:     employerID,
		Name:           name,
		GroupType:      domain.GroupTypeEmployerSponsored,
		SessionCredits: a.policy.Subsidy().GroupSessionCredits,
		CreatedAt:      a.now().UTC(),
	}
	created, err := repo.CreateGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	if created {
		return group, nil
	}
	return repo.GetGroup(ctx, employerID, name, domain.GroupTypeEmployerSponsored)
}

func (a *EmployerAssociator) ensureMembership(ctx context.Context, repo domain.EmployerRepository, userID, groupID string) error {
	existing, err := notFound(repo.GetMembership(ctx, userID, groupID))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = repo.CreateMembership(ctx, &domain.SponsoredGroupMember{
		ID:       uuid.NewString(),
		UserID:   userID,
		GroupID:  groupID,
		IsActive: true,
		JoinedAt: a.now().UTC(),
	})
	return err
}
