package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
	"fintherapy-backend/pkg/security"
	"fintherapy-backend/pkg/validation"
	"fintherapy-backend/pkg/webhook"
)

const (
	maxWebhookBody    = 1 << 20
	retryAfterSeconds = 30
)

type SignatureVerifier interface {
	Verify(body []byte, header http.Header) error
}

// DeliveryGuard short-circuits deliveries already handled
type DeliveryGuard interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

// EventArchive keeps the raw body of every verified delivery
type EventArchive interface {
	Store(ctx context.Context, eventType, messageID string, body []byte, at time.Time) error
}

type WebhookDeps struct {
	Verifier  SignatureVerifier
	WebhookUC domain.WebhookUsecase
	Guard     DeliveryGuard // optional
	Archive   EventArchive  // optional
	Audit     *security.SecurityLogger
	Validate  *validator.Validate
}

type WebhookHandler struct {
	deps WebhookDeps
}

func NewWebhookHandler(public *gin.RouterGroup, deps WebhookDeps) {
	if deps.Validate == nil {
		deps.Validate = validation.New()
	}
	handler := &WebhookHandler{deps: deps}

	public.POST("/webhooks/identity", handler.Receive)
}

// Receive godoc
// @Summary      Identity provider webhook
// @Description  Verifies the signature and applies user and session events to local state.
// @Description  503 asks the sender to redeliver later; other non-2xx answers are final.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        svix-id         header    string  true  "Delivery id"
// @Param        svix-timestamp  header    string  true  "Unix seconds"
// @Param        svix-signature  header    string  true  "v1,<base64 HMAC>"
// @Success      200  {object}  response.Response{data=domain.Result}
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /webhooks/identity [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusRequestEntityTooLarge, "Payload too large", nil)
		return
	}

	messageID := c.GetHeader(webhook.HeaderID)
	if err := h.deps.Verifier.Verify(body, c.Request.Header); err != nil {
		if h.deps.Audit != nil {
			h.deps.Audit.SignatureRejected(ctx, messageID, c.ClientIP(), err.Error())
		}
		response.Error(c, http.StatusUnauthorized, "Invalid webhook signature", nil)
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.respond(c, domain.Invalid("", "malformed envelope: "+err.Error()))
		return
	}
	if err := h.deps.Validate.Struct(&env); err != nil {
		h.respond(c, domain.Invalid(env.Type, validation.Summary(err)))
		return
	}

	if h.deps.Guard != nil {
		seen, err := h.deps.Guard.Seen(ctx, messageID)
		if err != nil {
			logger.Log.Warn("Delivery guard unavailable, processing anyway", "svix_id", messageID, "error", err)
		} else if seen {
			h.respond(c, domain.Ignored(env.Type, "duplicate delivery"))
			return
		}
	}

	if h.deps.Archive != nil {
		if err := h.deps.Archive.Store(ctx, string(env.Type), messageID, body, time.Now()); err != nil {
			logger.Log.Warn("Failed to archive webhook delivery", "svix_id", messageID, "error", err)
		}
	}

	res := h.deps.WebhookUC.Dispatch(ctx, &env)

	// Only settled results are remembered
	if h.deps.Guard != nil && res.Settled() {
		if err := h.deps.Guard.Mark(context.WithoutCancel(ctx), messageID); err != nil {
			logger.Log.Warn("Failed to mark webhook delivery", "svix_id", messageID, "error", err)
		}
	}
	h.respond(c, res)
}

func (h *WebhookHandler) respond(c *gin.Context, res domain.Result) {
	code := StatusFor(res)
	logger.Log.Info("Webhook handled", "event", res.EventType, "status", res.Status, "code", res.Code, "http_status", code)
	if code < http.StatusBadRequest {
		response.Success(c, code, "Webhook processed", res)
		return
	}
	if code == http.StatusServiceUnavailable {
		response.RetryLater(c, retryAfterSeconds, res.Message, res)
		return
	}
	response.Error(c, code, res.Message, res)
}

// StatusFor maps a handler result to the HTTP answer the sender understands
func StatusFor(res domain.Result) int {
	switch res.Status {
	case domain.ResultOK, domain.ResultIgnored:
		return http.StatusOK
	case domain.ResultRetryable:
		return http.StatusServiceUnavailable
	}
	if res.Code == domain.CodeInvalidPayload {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errNoVerifier = errors.New("webhook verifier not configured")

// RejectAllVerifier is used when no signing secret is configured
type RejectAllVerifier struct{}

func (RejectAllVerifier) Verify([]byte, http.Header) error { return errNoVerifier }
