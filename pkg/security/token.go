package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// AccessTokenBytes is the entropy carried by a public quote access token.
const AccessTokenBytes = 32

// GenerateAccessToken returns a URL-safe opaque token suitable for public
// quote links. Tokens are unguessable and never reused across quotes.
func GenerateAccessToken() (string, error) {
	buf := make([]byte, AccessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateReferenceSuffix returns an upper-case hex suffix of n random bytes
// for human-facing document numbers (quote and invoice numbers).
func GenerateReferenceSuffix(n int) (string, error) {
	if n <= 0 {
		n = 3
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reference suffix: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
