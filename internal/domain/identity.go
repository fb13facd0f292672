package domain

import (
	"context"
	"errors"
)

// ErrRemoteUserNotFound is returned by IdentityProvider when the account does not exist
var ErrRemoteUserNotFound = errors.New("identity provider user not found")

// IdentityProvider is the subset of the provider's backend API this service calls.
// Every method is a network call and may fail.
type IdentityProvider interface {
	GetUser(ctx context.Context, externalID string) (*UserPayload, error)
	UpdateUserMetadata(ctx context.Context, externalID string, public map[string]interface{}) error
	DeleteUser(ctx context.Context, externalID string) error
}
