package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fintherapy-backend/internal/domain"
)

// EventType represents the type of audit event
type EventType string

const (
	EventCompensationSucceeded EventType = "compensation_succeeded"
	EventOrphanedRemoteAccount EventType = "orphaned_remote_account"
	EventPromotionAnomaly      EventType = "therapist_promotion_anomaly"
	EventSignatureRejected     EventType = "webhook_signature_rejected"
	EventUnauthorizedAccess    EventType = "unauthorized_access"
)

// SecurityEvent is one audit record
type SecurityEvent struct {
	Timestamp    time.Time              `json:"timestamp"`
	Service      string                 `json:"service"`
	Environment  string                 `json:"env"`
	Level        string                 `json:"level"`
	Event        EventType              `json:"event"`
	SubjectType  string                 `json:"subject_type,omitempty"`  // "email", "external_id", "ip"
	SubjectValue string                 `json:"subject_value,omitempty"` // Masked for PII
	IP           string                 `json:"ip,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SecurityLogger writes audit events through a dedicated zap logger so they can be
// routed separately from application logs
type SecurityLogger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
}

// InitSecurityLogger initializes the security logger with Zap
func InitSecurityLogger(serviceName, environment string) *SecurityLogger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.DPanicLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return NewSecurityLogger(logger, serviceName, environment)
}

// NewSecurityLogger wraps an existing zap logger, e.g. an observer core in tests
func NewSecurityLogger(logger *zap.Logger, serviceName, environment string) *SecurityLogger {
	return &SecurityLogger{
		zapLogger:   logger,
		serviceName: serviceName,
		environment: environment,
	}
}

// Log logs an audit event
func (sl *SecurityLogger) Log(ctx context.Context, event SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = sl.serviceName
	event.Environment = sl.environment
	if event.RequestID == "" {
		event.RequestID = requestIDFrom(ctx)
	}

	level := zapcore.WarnLevel
	switch event.Event {
	case EventCompensationSucceeded:
		level = zapcore.InfoLevel
	case EventSignatureRejected, EventUnauthorizedAccess:
		level = zapcore.WarnLevel
	case EventOrphanedRemoteAccount, EventPromotionAnomaly:
		level = zapcore.ErrorLevel
	}
	event.Level = level.String()

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType))
	}
	if event.SubjectValue != "" {
		fields = append(fields, zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}

	sl.zapLogger.Log(level, string(event.Event), fields...)
}

// CompensationSucceeded records that a rolled back signup's remote account was removed
func (sl *SecurityLogger) CompensationSucceeded(ctx context.Context, externalID string, attempts int) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventCompensationSucceeded,
		SubjectType:  "external_id",
		SubjectValue: externalID,
		Details:      map[string]interface{}{"attempts": attempts},
	})
}

// OrphanedRemoteAccount is the critical signal for manual cleanup
func (sl *SecurityLogger) OrphanedRemoteAccount(ctx context.Context, externalID, email string, attempts int, cause error) {
	details := map[string]interface{}{
		"attempts":        attempts,
		"email":           MaskEmail(email),
		"requires_action": "manual_cleanup",
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	sl.Log(ctx, SecurityEvent{
		Event:        EventOrphanedRemoteAccount,
		SubjectType:  "external_id",
		SubjectValue: externalID,
		Details:      details,
	})
}

func (sl *SecurityLogger) TherapistPromotionAnomaly(ctx context.Context, userID, email, reason string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventPromotionAnomaly,
		SubjectType:  "email",
		SubjectValue: MaskEmail(email),
		Details:      map[string]interface{}{"user_id": userID, "reason": reason},
	})
}

// SignatureRejected logs a webhook delivery that failed verification
func (sl *SecurityLogger) SignatureRejected(ctx context.Context, messageID, ip, reason string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventSignatureRejected,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		Details:      map[string]interface{}{"svix_id": messageID, "reason": reason},
	})
}

// UnauthorizedAccess logs a rejected admin request
func (sl *SecurityLogger) UnauthorizedAccess(ctx context.Context, subject, ip, path string) {
	sl.Log(ctx, SecurityEvent{
		Event:        EventUnauthorizedAccess,
		SubjectType:  "external_id",
		SubjectValue: subject,
		IP:           ip,
		Details:      map[string]interface{}{"path": path},
	})
}

// Sync flushes any buffered log entries
func (sl *SecurityLogger) Sync() error {
	return sl.zapLogger.Sync()
}

// --- Helper Functions ---

// MaskEmail masks an email for logging (e.g., "j***@example.com")
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	atIndex := strings.IndexByte(email, '@')
	if atIndex <= 1 {
		return "***" + email[1:]
	}
	return string(email[0]) + "***" + email[atIndex:]
}

// HashValue creates a SHA256 hash of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}

func requestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(domain.KeyRequestID).(string); ok {
		return v
	}
	return ""
}

// Environment maps GIN_MODE to the environment label
func Environment() string {
	if os.Getenv("GIN_MODE") == "release" {
		return "production"
	}
	return "development"
}
