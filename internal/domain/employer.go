package domain

import (
	"context"
	"time"
)

// GroupTypeEmployerSponsored is the only group type created by signup
const GroupTypeEmployerSponsored = "employer_sponsored"

// SubsidyDefaults is applied to employers and groups created during signup
type SubsidyDefaults struct {
	SubsidyPercent            int `json:"subsidy_percent" yaml:"subsidy_percent"`
	SessionCreditsPerEmployee int `json:"session_credits_per_employee" yaml:"session_credits_per_employee"`
	GroupSessionCredits       int `json:"group_session_credits" yaml:"group_session_credits"`
}

// DefaultSubsidy is used when the role policy file does not override it
func DefaultSubsidy() SubsidyDefaults {
	return SubsidyDefaults{
		SubsidyPercent:            100,
		SessionCreditsPerEmployee: 4,
		GroupSessionCredits:       0,
	}
}

type Employer struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	SubsidyPercent            int       `json:"subsidy_percent"`
	SessionCreditsPerEmployee int       `json:"session_credits_per_employee"`
	IsActive                  bool      `json:"is_active"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type SponsoredGroup struct {
	ID             string    `json:"id"`
	EmployerID     string    `json:"employer_id"`
	Name           string    `json:"name"`
	GroupType      string    `json:"group_type"`
	SessionCredits int       `json:"session_credits"`
	CreatedAt      time.Time `json:"created_at"`
}

type SponsoredGroupMember struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	GroupID  string    `json:"group_id"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

// EmployerRepository create methods are conflict-tolerant: when the unique key
// already exists they return created=false and write nothing.
type EmployerRepository interface {
	GetEmployerByName(ctx context.Context, name string) (*Employer, error)
	CreateEmployer(ctx context.Context, employer *Employer) (created bool, err error)
	GetGroup(ctx context.Context, employerID, name, groupType string) (*SponsoredGroup, error)
	CreateGroup(ctx context.Context, group *SponsoredGroup) (created bool, err error)
	GetMembership(ctx context.Context, userID, groupID string) (*SponsoredGroupMember, error)
	CreateMembership(ctx context.Context, member *SponsoredGroupMember) (created bool, err error)
}
