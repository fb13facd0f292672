package domain

import (
	"context"
	"encoding/json"
	"time"
)

// SessionStatus tracks a provider-side authentication session.
// created is the only non-terminal state.
type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "created"
	SessionStatusEnded   SessionStatus = "ended"
	SessionStatusRemoved SessionStatus = "removed"
)

// IsTerminal reports whether no further transition is expected
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusEnded || s == SessionStatusRemoved
}

type UserSession struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	ExternalSessionID string          `json:"external_session_id"`
	Status            SessionStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// SessionCreatedInput carries the fields of a session.created event
type SessionCreatedInput struct {
	SessionID      string
	ExternalUserID string
	CreatedAt      time.Time
	Metadata       json.RawMessage
}

type SessionRepository interface {
	GetByExternalID(ctx context.Context, externalSessionID string) (*UserSession, error)
	// Insert is a no-op returning inserted=false when the external session id already exists
	Insert(ctx context.Context, session *UserSession) (inserted bool, err error)
	MarkEnded(ctx context.Context, externalSessionID string, status SessionStatus, endedAt time.Time) (int64, error)
}

type SessionUsecase interface {
	OnSessionCreated(ctx context.Context, in SessionCreatedInput) error
	OnSessionEnded(ctx context.Context, sessionID string, endedAt time.Time, status SessionStatus) error
}
