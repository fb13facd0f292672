package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"fintherapy-backend/internal/domain"
)

var ErrProviderDown = errors.New("billing provider unavailable")

// CustomerCreator is the part of the Stripe customer client this package uses
type CustomerCreator interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

// StripeProvisioner creates one billing customer per local user
type StripeProvisioner struct {
	customers CustomerCreator
}

func NewStripeProvisioner(apiKey string) *StripeProvisioner {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeProvisioner{customers: sc.Customers}
}

func NewStripeProvisionerWithClient(customers CustomerCreator) *StripeProvisioner {
	return &StripeProvisioner{customers: customers}
}

// CreateCustomer is safe to repeat: Stripe replays the first response for the same idempotency key
func (p *StripeProvisioner) CreateCustomer(ctx context.Context, user *domain.User, idempotencyKey string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
	}
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("user_id", user.ID)
	params.AddMetadata("external_id", user.ExternalID)
	params.AddMetadata("role", string(user.Role))
	if user.EmployerID != nil {
		params.AddMetadata("employer_id", *user.EmployerID)
	}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}
	params.Context = ctx

	customer, err := p.customers.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return customer.ID, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", ErrProviderDown, stripeErr.Msg)
	}
	return fmt.Errorf("stripe customer create: %w", err)
}
