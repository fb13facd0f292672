package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveJWKS(t *testing.T, kid string, pub *rsa.PublicKey) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JSONWebKey{{
			Kid: kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseSession(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, hits := serveJWKS(t, "ins_1", &key.PublicKey)
	p := NewProvider(srv.URL)
	ctx := context.Background()

	valid := SessionClaims{
		SessionID: "sess_1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := p.ParseSession(ctx, sign(t, key, "ins_1", valid))
		require.NoError(t, err)
		assert.Equal(t, "user_1", claims.Subject)
		assert.Equal(t, "sess_1", claims.SessionID)
	})

	t.Run("keys are cached", func(t *testing.T) {
		_, err := p.ParseSession(ctx, sign(t, key, "ins_1", valid))
		require.NoError(t, err)
		assert.Equal(t, 1, *hits)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := valid
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := p.ParseSession(ctx, sign(t, key, "ins_1", expired))
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := p.ParseSession(ctx, sign(t, key, "ins_other", valid))
		assert.Error(t, err)
	})

	t.Run("hmac token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, valid)
		s, err := token.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = p.ParseSession(ctx, s)
		assert.Error(t, err)
	})
}
