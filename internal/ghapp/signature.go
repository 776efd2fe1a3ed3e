package ghapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Verifier validates webhook payload signatures against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks a GitHub webhook signature header ("sha256=<hex>") against
// the raw request body. It must be called on the exact bytes received on the
// wire, before any JSON parsing, since re-serialization can alter whitespace
// and invalidate the digest. Malformed headers are rejected.
func (v *Verifier) Verify(body []byte, signatureHeader string) bool {
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}

	supplied, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(supplied, expected)
}

// Sign computes the signature header value for a payload. Used by tests and
// tooling that emulate webhook deliveries.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
