package identityprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fintherapy-backend/internal/domain"
)

// APIError is a non-2xx answer from the provider's backend API
type APIError struct {
	StatusCode int
	Errors     []struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("identity provider returned %d: %s (%s)", e.StatusCode, e.Errors[0].Message, e.Errors[0].Code)
	}
	return fmt.Sprintf("identity provider returned %d", e.StatusCode)
}

// Client talks to the Clerk backend API. Calls are rate limited so a burst of
// compensations or metadata writes cannot trip the provider's own limits.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL, secretKey string, rps float64, opts ...Option) *Client {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetUser(ctx context.Context, externalID string) (*domain.UserPayload, error) {
	var user domain.UserPayload
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(externalID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserMetadata merges public into the user's public metadata
func (c *Client) UpdateUserMetadata(ctx context.Context, externalID string, public map[string]interface{}) error {
	body := map[string]interface{}{"public_metadata": public}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(externalID)+"/metadata", body, nil)
}

func (c *Client) DeleteUser(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(externalID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("identity provider rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.ErrRemoteUserNotFound
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}
