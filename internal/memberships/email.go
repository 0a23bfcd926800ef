package memberships

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	invitePlaceholderPrefix = "invite|"
	directPlaceholderPrefix = "direct|"
)

var emailValidator = validator.New()

// NormalizeEmail lower-cases and trims an address. Every stored email and every
// email comparison goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether the normalized address is well formed.
func ValidateEmail(email string) error {
	return emailValidator.Var(NormalizeEmail(email), "required,email,max=320")
}

// InvitePlaceholderExternalID reserves the external id column of a pending
// invitation until the invitee signs in.
func InvitePlaceholderExternalID() string {
	return invitePlaceholderPrefix + uuid.NewString()
}

// DirectPlaceholderExternalID marks a member added directly by an admin who
// has not yet signed in.
func DirectPlaceholderExternalID() string {
	return directPlaceholderPrefix + uuid.NewString()
}

// IsPlaceholderExternalID reports whether the value was generated locally
// rather than issued by the identity provider.
func IsPlaceholderExternalID(externalID string) bool {
	return strings.HasPrefix(externalID, invitePlaceholderPrefix) ||
		strings.HasPrefix(externalID, directPlaceholderPrefix)
}

// PublicExternalID hides placeholder ids from API consumers.
func PublicExternalID(externalID string) string {
	if IsPlaceholderExternalID(externalID) {
		return ""
	}
	return externalID
}
