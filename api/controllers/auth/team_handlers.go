package auth

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/team"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type acceptInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,member_role"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// TeamList returns every membership of the caller's organization.
func TeamList(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := svc.ListMembers(r.Context(), middleware.MembershipFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"members": members})
	}
}

// TeamInvite creates a pending membership and queues the invitation email.
func TeamInvite(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body team.InviteInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Invite(r.Context(), middleware.MembershipFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// TeamCreateMember adds an active member without the invitation flow.
func TeamCreateMember(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body team.CreateMemberInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.CreateMember(r.Context(), middleware.MembershipFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"membership": member})
	}
}

// TeamVerifyInvitation previews an invitation. It needs no session.
func TeamVerifyInvitation(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := validators.RequiredQuery(r, "token", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.VerifyInvitation(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// TeamAcceptInvitation redeems an invitation for the signed-in caller and
// returns a session scoped to the invited organization.
func TeamAcceptInvitation(svc team.Service, sessions auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body acceptInvitationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := middleware.MembershipFromContext(r.Context())
		var identity team.Identity
		if caller != nil {
			identity = team.Identity{ExternalID: caller.ExternalID, Email: caller.Email}
		}

		accepted, err := svc.AcceptInvitation(r.Context(), body.Token, identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := sessions.IssueSession(r.Context(), accepted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// TeamChangeRole updates a member's role.
func TeamChangeRole(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body changeRoleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.ChangeRole(r.Context(), middleware.MembershipFromContext(r.Context()), id, body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"membership": member})
	}
}

// TeamChangeStatus activates or deactivates a member.
func TeamChangeStatus(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body changeStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.SetStatus(r.Context(), middleware.MembershipFromContext(r.Context()), id, body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"membership": member})
	}
}

// TeamRemove deletes a membership.
func TeamRemove(svc team.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Remove(r.Context(), middleware.MembershipFromContext(r.Context()), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
