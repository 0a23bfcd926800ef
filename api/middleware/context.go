package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type contextKey string

const ctxMembership contextKey = "membership"

// MembershipFromContext returns the verified membership attached by Auth.
func MembershipFromContext(ctx context.Context) *models.Membership {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxMembership).(*models.Membership); ok {
		return v
	}
	return nil
}

// WithMembership attaches the verified membership to the context.
func WithMembership(ctx context.Context, membership *models.Membership) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMembership, membership)
}

// OrganizationIDFromContext is the tenant the request is scoped to. Handlers
// use it instead of any client-supplied organization id.
func OrganizationIDFromContext(ctx context.Context) string {
	if m := MembershipFromContext(ctx); m != nil {
		return m.OrganizationID
	}
	return ""
}
