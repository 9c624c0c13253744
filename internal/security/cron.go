package security

import (
	"crypto/subtle"
	"strings"
)

// ValidateBearer reports whether an Authorization header carries the expected bearer secret.
// The comparison is constant time; an empty secret never matches.
func ValidateBearer(header, secret string) bool {
	if secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}
