package security

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fintherapy-backend/internal/domain"
)

func newObserved() (*SecurityLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSecurityLogger(zap.New(core), "identity-sync", "test"), logs
}

func TestOrphanedRemoteAccount(t *testing.T) {
	sl, logs := newObserved()
	ctx := context.WithValue(context.Background(), domain.KeyRequestID, "req-1")

	sl.OrphanedRemoteAccount(ctx, "user_1", "jane@example.com", 3, errors.New("503"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, string(EventOrphanedRemoteAccount), entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "user_1", fields["subject_value"])
	assert.Equal(t, "req-1", fields["request_id"])
	details, ok := fields["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "j***@example.com", details["email"])
	assert.Equal(t, "503", details["error"])
}

func TestEventLevels(t *testing.T) {
	sl, logs := newObserved()
	ctx := context.Background()

	sl.CompensationSucceeded(ctx, "user_1", 2)
	sl.SignatureRejected(ctx, "msg_1", "10.0.0.1", "invalid signature")
	sl.TherapistPromotionAnomaly(ctx, "u-1", "t@example.com", "no pending therapist record")

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.InfoLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[2].Level)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane@example.com"))
	assert.Equal(t, "***", MaskEmail("a"))
	assert.Equal(t, "***@x.io", MaskEmail("a@x.io"))
	assert.Len(t, HashValue("jane@example.com"), 16)
}
