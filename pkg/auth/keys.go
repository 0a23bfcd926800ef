package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	purposeSession    = "storefront/session/v1"
	purposeInvitation = "storefront/invitation/v1"

	derivedKeyLen = 32
)

// signingKey derives a purpose-bound HMAC key from the configured secret so a
// session token can never verify as an invitation token and vice versa.
func signingKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}
	return key, nil
}
