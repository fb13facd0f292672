package domain

import (
	"context"
	"strings"
	"time"
)

// Role is the application-level authorization role of a user.
type Role string

const (
	RoleIndividualConsumer Role = "individual_consumer"
	RoleEmployee           Role = "employee"
	RoleEmployerAdmin      Role = "employer_admin"
	RoleTherapist          Role = "therapist"
	RoleSuperAdmin         Role = "super_admin"
)

// ValidRoles returns all roles a user row may carry
func ValidRoles() []Role {
	return []Role{RoleIndividualConsumer, RoleEmployee, RoleEmployerAdmin, RoleTherapist, RoleSuperAdmin}
}

// IsValid checks if the role is one of the known roles
func (r Role) IsValid() bool {
	for _, valid := range ValidRoles() {
		if r == valid {
			return true
		}
	}
	return false
}

// ParseRole normalizes a role claim coming from the identity provider.
// Unknown or empty claims return ok=false.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.IsValid() {
		return "", false
	}
	return r, true
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the part after '@', or "" for malformed input
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

type User struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"` // identity provider user id
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	ImageURL     string     `json:"image_url,omitempty"`
	Role         Role       `json:"role"`
	EmployerID   *string    `json:"employer_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserProfile is the set of fields the provider owns and may overwrite.
// Role is intentionally absent: it is written once, at creation.
type UserProfile struct {
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
}

type UserRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	// LockByExternalID and LockByEmail take a row lock for the rest of the transaction
	LockByExternalID(ctx context.Context, externalID string) (*User, error)
	LockByEmail(ctx context.Context, email string) (*User, error)
	// CreateIfAbsent inserts the user unless a row with the same external id or email
	// already exists, in which case created is false and nothing is written.
	CreateIfAbsent(ctx context.Context, user *User) (created bool, err error)
	UpdateProfile(ctx context.Context, userID string, profile UserProfile) (*User, error)
	// Relink moves an email-matched row onto a new external id
	Relink(ctx context.Context, userID, externalID string, profile UserProfile) (*User, error)
	SetEmployer(ctx context.Context, userID, employerID string) error
	Deactivate(ctx context.Context, externalID string) (int64, error)
	TouchActivity(ctx context.Context, externalID string, at time.Time) (int64, error)
}

// UserSyncUsecase reconciles user.* events into the users table
type UserSyncUsecase interface {
	SyncUser(ctx context.Context, eventType EventType, payload *UserPayload) (*User, error)
	Deactivate(ctx context.Context, externalID string) error
	TouchActivity(ctx context.Context, externalID string, at time.Time) error
}

type AuthUsecase interface {
	GetCurrentUser(ctx context.Context, externalID string) (*User, error)
}
