package domain

import (
	"context"
	"time"
)

// MetricsRecorder receives counters from the synchronization core
type MetricsRecorder interface {
	ObserveEvent(eventType EventType, status ResultStatus, elapsed time.Duration)
	IncCompensation(outcome string)
	IncEnrichmentFailure(step string)
}

// AuditLogger records integrity events that need operator attention
type AuditLogger interface {
	CompensationSucceeded(ctx context.Context, externalID string, attempts int)
	OrphanedRemoteAccount(ctx context.Context, externalID, email string, attempts int, cause error)
	TherapistPromotionAnomaly(ctx context.Context, userID, email string, reason string)
}

// AnalyticsEvent is published after a user write commits
type AnalyticsEvent struct {
	Name       string    `json:"event"`
	UserID     string    `json:"user_id"`
	ExternalID string    `json:"external_id"`
	Role       Role      `json:"role"`
	EmployerID *string   `json:"employer_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	AnalyticsUserSignedUp = "user_signed_up"
	AnalyticsUserUpdated  = "user_updated"
)

type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

// NoopMetrics discards everything; used when metrics are not wired
type NoopMetrics struct{}

func (NoopMetrics) ObserveEvent(EventType, ResultStatus, time.Duration) {}
func (NoopMetrics) IncCompensation(string)                              {}
func (NoopMetrics) IncEnrichmentFailure(string)                         {}

// RolePolicy is the static authorization configuration consulted at signup
type RolePolicy interface {
	IsEmployerAdmin(email string) bool
	// EmployerFor maps an email, then its domain, to an employer name
	EmployerFor(email string) (name string, ok bool)
	Subsidy() SubsidyDefaults
}
