package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
)

const postCommitTimeout = 15 * time.Second

// syncOutcome is what the transaction hands to the post-commit steps
type syncOutcome struct {
	eventType    domain.EventType
	user         *domain.User
	created      bool
	link         linkState
	syncMetadata bool
}

// PostCommitRunner performs the external calls that must not hold the
// transaction open. Failures are logged and counted, never returned.
type PostCommitRunner struct {
	idp       domain.IdentityProvider
	billing   domain.BillingProvisioner
	customers domain.BillingRepository
	publisher domain.EventPublisher
	metrics   domain.MetricsRecorder
	now       func() time.Time
}

func NewPostCommitRunner(idp domain.IdentityProvider, billing domain.BillingProvisioner, customers domain.BillingRepository, publisher domain.EventPublisher, metrics domain.MetricsRecorder) *PostCommitRunner {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &PostCommitRunner{
		idp:       idp,
		billing:   billing,
		customers: customers,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (r *PostCommitRunner) Run(ctx context.Context, out syncOutcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	if out.syncMetadata && r.idp != nil {
		g.Go(r.step(ctx, "metadata_sync", out, r.syncMetadata))
	}
	if out.eventType == domain.EventUserCreated && r.billing != nil && r.customers != nil {
		g.Go(r.step(ctx, "billing_customer", out, r.provisionBilling))
	}
	if r.publisher != nil {
		g.Go(r.step(ctx, "analytics", out, r.publish))
	}
	_ = g.Wait()
}

// step never returns an error so one failing call cannot cancel the others
func (r *PostCommitRunner) step(ctx context.Context, name string, out syncOutcome, fn func(context.Context, syncOutcome) error) func() error {
	return func() error {
		if err := fn(ctx, out); err != nil {
			r.metrics.IncEnrichmentFailure(name)
			logger.Log.Error("Post-commit step failed", "step", name, "user_id", out.user.ID, "error", err)
		}
		return nil
	}
}

func (r *PostCommitRunner) syncMetadata(ctx context.Context, out syncOutcome) error {
	return r.idp.UpdateUserMetadata(ctx, out.user.ExternalID, map[string]interface{}{
		"role": string(out.user.Role),
	})
}

func (r *PostCommitRunner) provisionBilling(ctx context.Context, out syncOutcome) error {
	existing, err := r.customers.GetByUserID(ctx, out.user.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	customerID, err := r.billing.CreateCustomer(ctx, out.user, "user-"+out.user.ID)
	if err != nil {
		return fmt.Errorf("create billing customer: %w", err)
	}
	return r.customers.Create(ctx, &domain.BillingCustomer{
		UserID:     out.user.ID,
		CustomerID: customerID,
		CreatedAt:  r.now().UTC(),
	})
}

func (r *PostCommitRunner) publish(ctx context.Context, out syncOutcome) error {
	name := domain.AnalyticsUserUpdated
	if out.created {
		name = domain.AnalyticsUserSignedUp
	}
	return r.publisher.Publish(ctx, out.user.ID, domain.AnalyticsEvent{
		Name:       name,
		UserID:     out.user.ID,
		ExternalID: out.user.ExternalID,
		Role:       out.user.Role,
		EmployerID: out.user.EmployerID,
		OccurredAt: r.now().UTC(),
	})
}
