package identityprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintherapy-backend/internal/domain"
)

func TestClient(t *testing.T) {
	var lastMethod, lastPath, lastAuth string
	var lastBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastMethod, lastPath, lastAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		lastBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
		}
		switch r.URL.Path {
		case "/v1/users/user_1":
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(`{"id":"user_1","primary_email_address_id":"idn_1","email_addresses":[{"id":"idn_1","email_address":"a@acme.com","verification":{"status":"verified"}}]}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"deleted":true}`))
		case "/v1/users/user_1/metadata":
			_, _ = w.Write([]byte(`{"id":"user_1"}`))
		case "/v1/users/user_gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":"resource_not_found","message":"not found"}]}`))
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"code":"form_param_invalid","message":"is invalid"}]}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "sk_test_123", 100)
	ctx := context.Background()

	t.Run("get user", func(t *testing.T) {
		user, err := c.GetUser(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, "a@acme.com", user.PrimaryEmail())
		assert.Equal(t, "Bearer sk_test_123", lastAuth)
	})

	t.Run("update metadata", func(t *testing.T) {
		err := c.UpdateUserMetadata(ctx, "user_1", map[string]interface{}{"role": "employee"})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPatch, lastMethod)
		assert.Equal(t, map[string]interface{}{"public_metadata": map[string]interface{}{"role": "employee"}}, lastBody)
	})

	t.Run("delete user", func(t *testing.T) {
		require.NoError(t, c.DeleteUser(ctx, "user_1"))
		assert.Equal(t, http.MethodDelete, lastMethod)
		assert.Equal(t, "/v1/users/user_1", lastPath)
	})

	t.Run("404 maps to remote not found", func(t *testing.T) {
		err := c.DeleteUser(ctx, "user_gone")
		assert.ErrorIs(t, err, domain.ErrRemoteUserNotFound)
	})

	t.Run("other errors carry the provider message", func(t *testing.T) {
		err := c.DeleteUser(ctx, "user_bad")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Contains(t, apiErr.Error(), "form_param_invalid")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, c.DeleteUser(cctx, "user_1"))
	})
}
