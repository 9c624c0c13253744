package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CSRFGenerator derives CSRF tokens from a session token id with HMAC-SHA256.
// No server-side state is kept, so any replica can validate.
type CSRFGenerator struct {
	secret []byte
}

// NewCSRFGenerator creates a new stateless HMAC-based CSRF generator.
func NewCSRFGenerator(secret string) *CSRFGenerator {
	return &CSRFGenerator{secret: []byte(secret)}
}

// GenerateToken returns the CSRF token for the given session token id.
func (g *CSRFGenerator) GenerateToken(tokenID string) (string, error) {
	if tokenID == "" {
		return "", fmt.Errorf("token id is required")
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte("csrf:" + tokenID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ValidateToken reports whether token is the valid CSRF token for tokenID.
func (g *CSRFGenerator) ValidateToken(tokenID, token string) bool {
	if tokenID == "" || token == "" {
		return false
	}
	expected, err := g.GenerateToken(tokenID)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(token))
}
