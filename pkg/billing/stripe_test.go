package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"fintherapy-backend/internal/domain"
)

type fakeCustomers struct {
	params *stripe.CustomerParams
	err    error
}

func (f *fakeCustomers) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Customer{ID: "cus_123"}, nil
}

func TestCreateCustomer(t *testing.T) {
	employerID := "emp-1"
	user := &domain.User{
		ID: "u-1", ExternalID: "user_1", Email: "a@acme.com",
		FirstName: "Ada", LastName: "Lovelace", Role: domain.RoleEmployee, EmployerID: &employerID,
	}

	t.Run("maps user and idempotency key", func(t *testing.T) {
		fake := &fakeCustomers{}
		p := NewStripeProvisionerWithClient(fake)
		ctx := context.Background()

		id, err := p.CreateCustomer(ctx, user, "user-u-1")

		require.NoError(t, err)
		assert.Equal(t, "cus_123", id)
		assert.Equal(t, "a@acme.com", *fake.params.Email)
		assert.Equal(t, "Ada Lovelace", *fake.params.Name)
		assert.Equal(t, "user-u-1", *fake.params.IdempotencyKey)
		assert.Equal(t, "u-1", fake.params.Metadata["user_id"])
		assert.Equal(t, "emp-1", fake.params.Metadata["employer_id"])
		assert.Equal(t, ctx, fake.params.Context)
	})

	t.Run("server errors are provider down", func(t *testing.T) {
		fake := &fakeCustomers{err: &stripe.Error{HTTPStatusCode: 503, Msg: "maintenance"}}
		_, err := NewStripeProvisionerWithClient(fake).CreateCustomer(context.Background(), user, "user-u-1")
		assert.ErrorIs(t, err, ErrProviderDown)
	})

	t.Run("client errors pass through", func(t *testing.T) {
		fake := &fakeCustomers{err: errors.New("invalid email")}
		_, err := NewStripeProvisionerWithClient(fake).CreateCustomer(context.Background(), user, "user-u-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderDown)
	})
}
