package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
	"fintherapy-backend/pkg/security"
)

// UserSyncDeps groups the collaborators of the user synchronizer
type UserSyncDeps struct {
	Transactor  domain.Transactor
	Resolver    *RoleResolver
	Associator  *EmployerAssociator
	Compensator *Compensator
	PostCommit  *PostCommitRunner
	Audit       domain.AuditLogger
	Metrics     domain.MetricsRecorder
}

type userSyncUsecase struct {
	tx          domain.Transactor
	resolver    *RoleResolver
	associator  *EmployerAssociator
	compensator *Compensator
	postCommit  *PostCommitRunner
	audit       domain.AuditLogger
	metrics     domain.MetricsRecorder
	now         func() time.Time
}

func NewUserSyncUsecase(deps UserSyncDeps) domain.UserSyncUsecase {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &userSyncUsecase{
		tx:          deps.Transactor,
		resolver:    deps.Resolver,
		associator:  deps.Associator,
		compensator: deps.Compensator,
		postCommit:  deps.PostCommit,
		audit:       deps.Audit,
		metrics:     metrics,
		now:         time.Now,
	}
}

// SyncUser reconciles a user.created or user.updated payload into the users table.
//
// Lookup is done by external id and by email independently. The stored role of a
// matched row is never changed; the resolver only runs when neither lookup matches.
// A blocking failure of a user.created event rolls the transaction back and then
// deletes the remote account, but only when this delivery was the one creating the
// local row. A redelivery for an already linked user never deletes the account.
func (u *userSyncUsecase) SyncUser(ctx context.Context, eventType domain.EventType, payload *domain.UserPayload) (*domain.User, error) {
	if eventType != domain.EventUserCreated && eventType != domain.EventUserUpdated {
		return nil, fmt.Errorf("unsupported user event %q", eventType)
	}

	email := payload.PrimaryEmail()
	if email == "" {
		err := domain.ErrNoValidEmail(payload.ID)
		if eventType == domain.EventUserCreated {
			return nil, u.compensate(ctx, payload.ID, "", err)
		}
		return nil, err
	}

	var out syncOutcome
	err := u.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxStore) error {
		o, err := u.reconcile(ctx, tx, eventType, payload, email)
		out = o
		return err
	})
	if err != nil {
		if _, ok := domain.KindOf(err); !ok {
			err = domain.ErrUserOperationFailed("user sync transaction failed", err)
		}
		logger.Log.Error("User sync failed", "event", eventType, "external_id", payload.ID, "link", out.link, "error", err)
		if eventType != domain.EventUserCreated {
			return nil, err
		}
		switch out.link {
		case linkAbsent:
			return nil, u.compensate(ctx, payload.ID, email, err)
		case linkUnknown:
			logger.Log.Warn("Local link state unknown, leaving remote account for redelivery", "external_id", payload.ID)
		}
		return nil, err
	}

	if u.postCommit != nil {
		u.postCommit.Run(ctx, out)
	}
	return out.user, nil
}

func (u *userSyncUsecase) reconcile(ctx context.Context, tx domain.TxStore, eventType domain.EventType, payload *domain.UserPayload, email string) (syncOutcome, error) {
	out := syncOutcome{eventType: eventType}

	user, link, err := u.persist(ctx, tx, payload, email)
	out.link = link
	if err != nil {
		return out, err
	}
	if user == nil {
		return out, domain.ErrUserOperationFailed("user write returned no row", nil)
	}

	if user.Role == domain.RoleTherapist {
		if err := u.promoteTherapist(ctx, tx, user); err != nil {
			return out, domain.ErrUserOperationFailed("therapist promotion aborted user sync", err)
		}
	}

	if user.Role == domain.RoleEmployee && u.associator != nil {
		u.associator.Associate(ctx, tx, user, payload.SponsoredGroupName())
	}

	if eventType == domain.EventUserCreated {
		if answers := payload.OnboardingAnswers(); answers != nil {
			err := tx.Savepoint(ctx, func(s domain.Store) error {
				_, err := s.Onboarding().Upsert(ctx, user.ID, answers)
				return err
			})
			if err != nil {
				u.metrics.IncEnrichmentFailure("onboarding")
				logger.Log.Error("Onboarding capture failed", "user_id", user.ID, "error", err)
			}
		}
	}

	out.user = user
	out.created = link == linkAbsent
	out.syncMetadata = payload.PublicMetadata.Role != string(user.Role)
	return out, nil
}

// linkState records what persist learned about the local row before failing
type linkState int

const (
	linkUnknown linkState = iota
	// no local row matched; this delivery creates it
	linkAbsent
	// a local row already matched by external id or email
	linkPresent
)

func (l linkState) String() string {
	switch l {
	case linkAbsent:
		return "absent"
	case linkPresent:
		return "present"
	}
	return "unknown"
}

// persist takes one of the three mutually exclusive branches: update by external id,
// re-link by email, or create. A create that loses a race to a concurrent delivery
// re-reads and falls through to update or re-link.
func (u *userSyncUsecase) persist(ctx context.Context, tx domain.TxStore, payload *domain.UserPayload, email string) (*domain.User, linkState, error) {
	users := tx.Users()
	profile := payload.Profile(email)
	link := linkUnknown

	for attempt := 0; attempt < 2; attempt++ {
		byID, err := notFound(users.LockByExternalID(ctx, payload.ID))
		if err != nil {
			return nil, link, domain.ErrUserOperationFailed("lookup by external id", err)
		}
		byEmail, err := notFound(users.LockByEmail(ctx, email))
		if err != nil {
			return nil, link, domain.ErrUserOperationFailed("lookup by email", err)
		}
		if byID != nil || byEmail != nil {
			link = linkPresent
		}

		switch {
		case byID != nil:
			if byEmail != nil && byEmail.ID != byID.ID {
				// The new address belongs to another row; keep ours rather than steal it
				logger.Log.Warn("Email already owned by another user, keeping current email",
					"user_id", byID.ID, "other_user_id", byEmail.ID, "email", security.MaskEmail(email))
				profile.Email = byID.Email
			}
			user, err := users.UpdateProfile(ctx, byID.ID, profile)
			if err != nil {
				return nil, link, domain.ErrUserOperationFailed("update user profile", err)
			}
			return user, link, nil

		case byEmail != nil:
			logger.Log.Warn("Re-linking user to new external id by email match",
				"user_id", byEmail.ID, "old_external_id", byEmail.ExternalID, "new_external_id", payload.ID)
			user, err := users.Relink(ctx, byEmail.ID, payload.ID, profile)
			if err != nil {
				return nil, link, domain.ErrUserOperationFailed("relink user", err)
			}
			return user, link, nil
		}

		if attempt > 0 {
			break
		}
		link = linkAbsent

		role := domain.RoleIndividualConsumer
		if u.resolver != nil {
			role = u.resolver.Resolve(ctx, tx, email, payload.RequestedRole())
		}
		now := u.now().UTC()
		candidate := &domain.User{
			ID:         uuid.NewString(),
			ExternalID: payload.ID,
			Email:      email,
			FirstName:  profile.FirstName,
			LastName:   profile.LastName,
			ImageURL:   profile.ImageURL,
			Role:       role,
			IsActive:   true,
			CreatedAt:  domain.MillisToTime(payload.CreatedAt, now),
		}
		created, err := users.CreateIfAbsent(ctx, candidate)
		if err != nil {
			return nil, link, domain.ErrUserOperationFailed("create user", err)
		}
		if created {
			logger.Log.Info("User created", "user_id", candidate.ID, "external_id", payload.ID, "role", role)
			return candidate, link, nil
		}
		logger.Log.Info("User create lost a race, re-reading", "external_id", payload.ID)
		link = linkUnknown
	}
	return nil, link, domain.ErrUserOperationFailed(fmt.Sprintf("user %s conflicted but could not be re-read", payload.ID), nil)
}

// promoteTherapist is blocking: a therapist without a professional profile is an
// inconsistent account. Already-promoted users are left alone.
func (u *userSyncUsecase) promoteTherapist(ctx context.Context, tx domain.TxStore, user *domain.User) error {
	therapists := tx.Therapists()

	existing, err := notFound(therapists.GetByUserID(ctx, user.ID))
	if err != nil {
		return domain.ErrTherapistPromotionFailed("lookup therapist profile", err)
	}
	if existing != nil {
		return nil
	}

	pending, err := therapists.GetPendingByEmail(ctx, user.Email)
	if errors.Is(err, domain.ErrNotFound) {
		if u.audit != nil {
			u.audit.TherapistPromotionAnomaly(ctx, user.ID, user.Email, "no pending therapist record")
		}
		return domain.ErrTherapistPromotionFailed(fmt.Sprintf("no pending therapist record for user %s", user.ID), nil)
	}
	if err != nil {
		return domain.ErrTherapistPromotionFailed("lookup pending therapist", err)
	}

	if err := therapists.DeletePending(ctx, pending.ID); err != nil {
		return domain.ErrTherapistPromotionFailed("consume pending therapist", err)
	}
	if err := therapists.Create(ctx, pending.Promote(uuid.NewString(), user.ID, u.now().UTC())); err != nil {
		return domain.ErrTherapistPromotionFailed("create therapist profile", err)
	}
	logger.Log.Info("Therapist promoted", "user_id", user.ID, "pending_id", pending.ID)
	return nil
}

func (u *userSyncUsecase) compensate(ctx context.Context, externalID, email string, cause error) error {
	if u.compensator == nil || externalID == "" {
		return cause
	}
	subject := CompensationSubject{ExternalID: externalID, Email: email}
	return domain.Final(u.compensator.Execute(ctx, subject, []CompensatingAction{u.compensator.DeleteRemoteUser(externalID)}, cause))
}

// Deactivate does not check for existence; an unknown user is a no-op
func (u *userSyncUsecase) Deactivate(ctx context.Context, externalID string) error {
	return u.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxStore) error {
		rows, err := tx.Users().Deactivate(ctx, externalID)
		if err != nil {
			return domain.ErrUserOperationFailed("deactivate user", err)
		}
		if rows == 0 {
			logger.Log.Debug("Deactivate for unknown user ignored", "external_id", externalID)
		}
		return nil
	})
}

func (u *userSyncUsecase) TouchActivity(ctx context.Context, externalID string, at time.Time) error {
	if at.IsZero() {
		at = u.now().UTC()
	}
	return u.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxStore) error {
		if _, err := tx.Users().TouchActivity(ctx, externalID, at); err != nil {
			return domain.ErrUserOperationFailed("touch user activity", err)
		}
		return nil
	})
}
