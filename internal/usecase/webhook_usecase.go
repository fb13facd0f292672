package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
	"fintherapy-backend/pkg/validation"
)

var webhookTracer = otel.Tracer("fintherapy/identity/webhook")

type webhookUsecase struct {
	users    domain.UserSyncUsecase
	sessions domain.SessionUsecase
	validate *validator.Validate
	metrics  domain.MetricsRecorder
	now      func() time.Time
}

func NewWebhookUsecase(users domain.UserSyncUsecase, sessions domain.SessionUsecase, validate *validator.Validate, metrics domain.MetricsRecorder) domain.WebhookUsecase {
	if validate == nil {
		validate = validation.New()
	}
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &webhookUsecase{
		users:    users,
		sessions: sessions,
		validate: validate,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Dispatch routes one verified envelope to its handler. It never panics and never
// returns an error: the Result tells the transport what to answer.
func (u *webhookUsecase) Dispatch(ctx context.Context, env *domain.Envelope) (res domain.Result) {
	start := u.now()
	ctx, span := webhookTracer.Start(ctx, "identity.webhook.dispatch",
		trace.WithAttributes(attribute.String("event.type", string(env.Type))),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Error("Panic while handling webhook event", "event", env.Type, "panic", rec, "stack", string(debug.Stack()))
			res = domain.FromError(env.Type, fmt.Errorf("internal error handling %s", env.Type))
		}
		span.SetAttributes(attribute.String("result.status", string(res.Status)))
		if res.Code != "" {
			span.SetAttributes(attribute.String("result.code", res.Code))
		}
		if res.Status == domain.ResultFailed || res.Status == domain.ResultRetryable {
			span.SetStatus(codes.Error, res.Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		u.metrics.ObserveEvent(env.Type, res.Status, u.now().Sub(start))
	}()

	switch env.Type {
	case domain.EventUserCreated, domain.EventUserUpdated:
		return u.handleUserSync(ctx, env)
	case domain.EventUserDeleted:
		return u.handleUserDeleted(ctx, env)
	case domain.EventUserSignedIn, domain.EventUserSignedOut:
		return u.handleActivity(ctx, env)
	case domain.EventSessionCreated:
		return u.handleSessionCreated(ctx, env)
	case domain.EventSessionEnded:
		return u.handleSessionEnded(ctx, env, domain.SessionStatusEnded)
	case domain.EventSessionRemoved:
		return u.handleSessionEnded(ctx, env, domain.SessionStatusRemoved)
	default:
		logger.Log.Info("Ignoring unhandled webhook event", "event", env.Type)
		return domain.Ignored(env.Type, "unhandled event type")
	}
}

// decode unmarshals and validates the data object; a non-empty message means invalid
func (u *webhookUsecase) decode(env *domain.Envelope, dst interface{}) string {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Sprintf("malformed %s data: %v", env.Type, err)
	}
	if err := u.validate.Struct(dst); err != nil {
		return validation.Summary(err)
	}
	return ""
}

func (u *webhookUsecase) handleUserSync(ctx context.Context, env *domain.Envelope) domain.Result {
	var payload domain.UserPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return domain.Invalid(env.Type, fmt.Sprintf("malformed %s data: %v", env.Type, err))
	}
	// Profile fields are repaired, not rejected
	if fields := payload.Sanitize(); len(fields) > 0 {
		logger.Log.Warn("Sanitized user profile fields", "event", env.Type, "external_id", payload.ID, "fields", fields)
	}
	if err := u.validate.Struct(&payload); err != nil {
		return domain.Invalid(env.Type, validation.Summary(err))
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.external_id", payload.ID))

	user, err := u.users.SyncUser(ctx, env.Type, &payload)
	if err != nil {
		return domain.FromError(env.Type, err)
	}
	res := domain.OK(env.Type)
	res.UserID = user.ID
	return res
}

func (u *webhookUsecase) handleUserDeleted(ctx context.Context, env *domain.Envelope) domain.Result {
	var payload domain.DeletedObjectPayload
	if msg := u.decode(env, &payload); msg != "" {
		return domain.Invalid(env.Type, msg)
	}
	if err := u.users.Deactivate(ctx, payload.ID); err != nil {
		return domain.FromError(env.Type, err)
	}
	return domain.OK(env.Type)
}

func (u *webhookUsecase) handleActivity(ctx context.Context, env *domain.Envelope) domain.Result {
	var payload domain.ActivityPayload
	if msg := u.decode(env, &payload); msg != "" {
		return domain.Invalid(env.Type, msg)
	}
	if err := u.users.TouchActivity(ctx, payload.ExternalUserID(), payload.ActiveAt(u.now().UTC())); err != nil {
		return domain.FromError(env.Type, err)
	}
	return domain.OK(env.Type)
}

func (u *webhookUsecase) handleSessionCreated(ctx context.Context, env *domain.Envelope) domain.Result {
	var payload domain.SessionPayload
	if msg := u.decode(env, &payload); msg != "" {
		return domain.Invalid(env.Type, msg)
	}
	err := u.sessions.OnSessionCreated(ctx, domain.SessionCreatedInput{
		SessionID:      payload.ID,
		ExternalUserID: payload.UserID,
		CreatedAt:      domain.MillisToTime(payload.CreatedAt, u.now().UTC()),
		Metadata:       payload.Metadata(),
	})
	if err != nil {
		return domain.FromError(env.Type, err)
	}
	return domain.OK(env.Type)
}

func (u *webhookUsecase) handleSessionEnded(ctx context.Context, env *domain.Envelope, status domain.SessionStatus) domain.Result {
	var payload domain.SessionPayload
	if msg := u.decode(env, &payload); msg != "" {
		return domain.Invalid(env.Type, msg)
	}
	endedAt := domain.MillisToTime(payload.UpdatedAt, u.now().UTC())
	if err := u.sessions.OnSessionEnded(ctx, payload.ID, endedAt, status); err != nil {
		return domain.FromError(env.Type, err)
	}
	return domain.OK(env.Type)
}
