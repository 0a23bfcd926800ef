package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Authenticator resolves a session token to the membership it names.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Membership, error)
}

// Auth validates a bearer token and seeds the request context with the
// resolved membership.
func Auth(authn Authenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := validators.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			membership, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
					err = pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid or expired session")
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithMembership(r.Context(), membership)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"membership_id":   membership.ID.String(),
					"organization_id": membership.OrganizationID,
					"actor_role":      string(membership.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
