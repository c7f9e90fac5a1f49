package repo

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes yields a 22-character URL-safe token, short enough to copy by hand.
const tokenBytes = 16

// newToken generates an opaque capability token. Uniqueness is enforced by
// the caller against the tenants table before insert.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
