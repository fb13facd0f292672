package domain

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// EventType is the provider's webhook event name
type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventSessionEnded   EventType = "session.ended"
	EventSessionRemoved EventType = "session.removed"
	EventUserCreated    EventType = "user.created"
	EventUserUpdated    EventType = "user.updated"
	EventUserDeleted    EventType = "user.deleted"
	EventUserSignedIn   EventType = "user.signed_in"
	EventUserSignedOut  EventType = "user.signed_out"
)

// Envelope is the verified outer object of a webhook delivery
type Envelope struct {
	Type      EventType       `json:"type" validate:"required"`
	Object    string          `json:"object"`
	Data      json.RawMessage `json:"data" validate:"required"`
	Timestamp int64           `json:"timestamp"`
}

type EmailVerification struct {
	Status string `json:"status"`
}

type EmailAddress struct {
	ID           string             `json:"id"`
	EmailAddress string             `json:"email_address"`
	Verification *EmailVerification `json:"verification"`
}

// IsVerified reports whether the provider has confirmed ownership of the address
func (e EmailAddress) IsVerified() bool {
	return e.Verification != nil && e.Verification.Status == "verified"
}

// UserMetadataClaims is the shape this application stores in provider metadata
type UserMetadataClaims struct {
	Role           string          `json:"role,omitempty"`
	SponsoredGroup string          `json:"sponsoredGroup,omitempty"`
	Onboarding     json.RawMessage `json:"onboarding,omitempty"`
}

// UserPayload is the data object of user.* events
type UserPayload struct {
	ID                    string             `json:"id" validate:"required,no_control"`
	EmailAddresses        []EmailAddress     `json:"email_addresses"`
	PrimaryEmailAddressID string             `json:"primary_email_address_id"`
	FirstName             string             `json:"first_name" validate:"max=255,no_control"`
	LastName              string             `json:"last_name" validate:"max=255,no_control"`
	ImageURL              string             `json:"image_url" validate:"omitempty,url"`
	PublicMetadata        UserMetadataClaims `json:"public_metadata"`
	UnsafeMetadata        UserMetadataClaims `json:"unsafe_metadata"`
	Deleted               bool               `json:"deleted"`
	CreatedAt             int64              `json:"created_at"`
	UpdatedAt             int64              `json:"updated_at"`
}

// PrimaryEmail picks the verified primary address, then any verified address,
// then the first listed one. The result is normalized; "" means no usable email.
func (p *UserPayload) PrimaryEmail() string {
	for _, e := range p.EmailAddresses {
		if e.ID == p.PrimaryEmailAddressID && e.IsVerified() && strings.TrimSpace(e.EmailAddress) != "" {
			return NormalizeEmail(e.EmailAddress)
		}
	}
	for _, e := range p.EmailAddresses {
		if e.IsVerified() && strings.TrimSpace(e.EmailAddress) != "" {
			return NormalizeEmail(e.EmailAddress)
		}
	}
	for _, e := range p.EmailAddresses {
		if strings.TrimSpace(e.EmailAddress) != "" {
			return NormalizeEmail(e.EmailAddress)
		}
	}
	return ""
}

// RequestedRole is the role claimed at signup. Unsafe metadata is what the
// signup form writes, so it wins over public metadata.
func (p *UserPayload) RequestedRole() string {
	if p.UnsafeMetadata.Role != "" {
		return p.UnsafeMetadata.Role
	}
	return p.PublicMetadata.Role
}

func (p *UserPayload) SponsoredGroupName() string {
	if name := strings.TrimSpace(p.UnsafeMetadata.SponsoredGroup); name != "" {
		return name
	}
	return strings.TrimSpace(p.PublicMetadata.SponsoredGroup)
}

// OnboardingAnswers returns nil when the signup carried no questionnaire
func (p *UserPayload) OnboardingAnswers() json.RawMessage {
	answers := p.UnsafeMetadata.Onboarding
	if len(answers) == 0 || string(answers) == "null" {
		return nil
	}
	return answers
}

func (p *UserPayload) Profile(email string) UserProfile {
	return UserProfile{
		Email:     email,
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		ImageURL:  p.ImageURL,
	}
}

// MaxNameLength bounds first and last names in runes
const MaxNameLength = 255

// Sanitize repairs profile fields the provider accepts but the users table does not.
// Control characters are stripped, names are cut to MaxNameLength runes and an image
// URL that is not an absolute http(s) URL is dropped. It returns the changed fields.
func (p *UserPayload) Sanitize() []string {
	var changed []string
	if name := cleanName(p.FirstName); name != p.FirstName {
		p.FirstName = name
		changed = append(changed, "first_name")
	}
	if name := cleanName(p.LastName); name != p.LastName {
		p.LastName = name
		changed = append(changed, "last_name")
	}
	if p.ImageURL != "" && !isHTTPURL(p.ImageURL) {
		p.ImageURL = ""
		changed = append(changed, "image_url")
	}
	return changed
}

func cleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if utf8.RuneCountInString(s) > MaxNameLength {
		s = string([]rune(s)[:MaxNameLength])
	}
	return s
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DeletedObjectPayload is the data object of user.deleted
type DeletedObjectPayload struct {
	ID      string `json:"id" validate:"required,no_control"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// SessionPayload is the data object of session.* and user.signed_* events
type SessionPayload struct {
	ID           string `json:"id" validate:"required,no_control"`
	UserID       string `json:"user_id" validate:"required,no_control"`
	ClientID     string `json:"client_id"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	LastActiveAt int64  `json:"last_active_at"`
	ExpireAt     int64  `json:"expire_at"`
	AbandonAt    int64  `json:"abandon_at"`
}

// Metadata keeps the provider fields that are not mapped to columns
func (p *SessionPayload) Metadata() json.RawMessage {
	raw, err := json.Marshal(map[string]interface{}{
		"client_id":      p.ClientID,
		"status":         p.Status,
		"last_active_at": p.LastActiveAt,
		"expire_at":      p.ExpireAt,
		"abandon_at":     p.AbandonAt,
	})
	if err != nil {
		return nil
	}
	return raw
}

// ActivityPayload is the data object of user.signed_in and user.signed_out.
// Depending on the provider version it is a session (user_id set) or a user object.
type ActivityPayload struct {
	ID           string `json:"id" validate:"required"`
	UserID       string `json:"user_id" validate:"omitempty,no_control"`
	LastActiveAt int64  `json:"last_active_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func (p *ActivityPayload) ExternalUserID() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.ID
}

// ActiveAt prefers last_active_at, then updated_at, then fallback
func (p *ActivityPayload) ActiveAt(fallback time.Time) time.Time {
	if p.LastActiveAt > 0 {
		return MillisToTime(p.LastActiveAt, fallback)
	}
	return MillisToTime(p.UpdatedAt, fallback)
}

// MillisToTime converts provider epoch milliseconds, falling back to fallback for zero
func MillisToTime(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}

type WebhookUsecase interface {
	Dispatch(ctx context.Context, env *Envelope) Result
}
