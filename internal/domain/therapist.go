package domain

import (
	"context"
	"time"
)

// PendingTherapist is a pre-provisioned profile waiting for its owner to sign up.
// Rows are created by the operations team and consumed exactly once by promotion.
type PendingTherapist struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Credentials    string    `json:"credentials"`
	Bio            string    `json:"bio"`
	Specialties    []string  `json:"specialties"`
	LicenseState   string    `json:"license_state"`
	HourlyRateCent int64     `json:"hourly_rate_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type Therapist struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Credentials    string    `json:"credentials"`
	Bio            string    `json:"bio"`
	Specialties    []string  `json:"specialties"`
	LicenseState   string    `json:"license_state"`
	HourlyRateCent int64     `json:"hourly_rate_cents"`
	IsAcceptingNew bool      `json:"is_accepting_new"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Promote copies the pending profile onto a new Therapist owned by userID
func (p *PendingTherapist) Promote(id, userID string, now time.Time) *Therapist {
	specialties := make([]string, len(p.Specialties))
	copy(specialties, p.Specialties)
	return &Therapist{
		ID:             id,
		UserID:         userID,
		DisplayName:    p.DisplayName,
		Credentials:    p.Credentials,
		Bio:            p.Bio,
		Specialties:    specialties,
		LicenseState:   p.LicenseState,
		HourlyRateCent: p.HourlyRateCent,
		IsAcceptingNew: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

type TherapistRepository interface {
	GetPendingByEmail(ctx context.Context, email string) (*PendingTherapist, error)
	DeletePending(ctx context.Context, id string) error
	GetByUserID(ctx context.Context, userID string) (*Therapist, error)
	Create(ctx context.Context, therapist *Therapist) error
}
