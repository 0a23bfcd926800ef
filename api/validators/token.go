package validators

import (
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid auth token")

// BearerToken pulls the credential out of an Authorization header. The scheme
// is optional; anything other than "Bearer" in front of the token is rejected.
func BearerToken(header string) (string, error) {
	first, rest, hasScheme := strings.Cut(strings.TrimSpace(header), " ")
	token := first
	if hasScheme {
		if !strings.EqualFold(first, "bearer") {
			return "", ErrInvalidToken
		}
		token = strings.TrimSpace(rest)
	}
	if token == "" || strings.EqualFold(token, "bearer") || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}
