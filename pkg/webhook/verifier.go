package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"

	secretPrefix     = "whsec_"
	signatureVersion = "v1"

	// DefaultTolerance is how far the delivery timestamp may drift from now
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("webhook: missing signature headers")
	ErrInvalidTimestamp = errors.New("webhook: timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook: no matching signature")
)

// Verifier checks the HMAC signature the identity provider attaches to every delivery
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes a whsec_ signing secret
func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	if secret == "" {
		return nil, errors.New("webhook: signing secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook: invalid signing secret: %w", err)
	}
	return &Verifier{key: key, tolerance: DefaultTolerance, now: time.Now}, nil
}

// Verify returns nil when at least one v1 signature in the header matches body
func (v *Verifier) Verify(body []byte, header http.Header) error {
	msgID := header.Get(HeaderID)
	rawTS := header.Get(HeaderTimestamp)
	sigHeader := header.Get(HeaderSignature)
	if msgID == "" || rawTS == "" || sigHeader == "" {
		return ErrMissingHeaders
	}

	sec, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	ts := time.Unix(sec, 0)
	now := v.now()
	if now.Sub(ts) > v.tolerance || ts.Sub(now) > v.tolerance {
		return ErrInvalidTimestamp
	}

	expected := v.sign(msgID, rawTS, body)
	for _, candidate := range strings.Fields(sigHeader) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a signature header value for msgID at ts, as the provider would
func (v *Verifier) Sign(msgID string, ts time.Time, body []byte) string {
	sig := v.sign(msgID, strconv.FormatInt(ts.Unix(), 10), body)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(sig)
}

func (v *Verifier) sign(msgID, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
