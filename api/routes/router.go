package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/auth"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/team"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Dependencies are the services and probes the router hands to controllers.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	RateLimiter middleware.RateLimiterStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Auth        auth.Service
	Team        team.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	registerLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:       "register",
		Window:     cfg.AuthRateLimit.RegisterWindow,
		PerIP:      cfg.AuthRateLimit.RegisterIPLimit,
		PerSubject: cfg.AuthRateLimit.RegisterEmailLimit,
	}, deps.RateLimiter, logg)
	acceptLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:         "invite_accept",
		Window:       cfg.AuthRateLimit.AcceptWindow,
		PerIP:        cfg.AuthRateLimit.AcceptIPLimit,
		PerSubject:   cfg.AuthRateLimit.AcceptEmailLimit,
		SubjectField: "token",
	}, deps.RateLimiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	authn := middleware.Auth(deps.Auth, logg)
	managers := middleware.RequireRoles(logg, enums.MemberRoleOwner, enums.MemberRoleManager)

	r.Route("/auth", func(r chi.Router) {
		r.With(registerLimit).
			Post("/register", authcontrollers.AuthRegister(deps.Auth, logg))
		r.Get("/invite/verify", authcontrollers.TeamVerifyInvitation(deps.Team, logg))

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/me", authcontrollers.AuthMe(deps.Auth, logg))
			r.Get("/organizations", authcontrollers.AuthOrganizations(deps.Auth, logg))
			r.Post("/switch-organization", authcontrollers.AuthSwitchOrganization(deps.Auth, logg))
			r.Get("/team", authcontrollers.TeamList(deps.Team, logg))
			r.With(acceptLimit).
				Post("/invite/accept", authcontrollers.TeamAcceptInvitation(deps.Team, deps.Auth, logg))

			r.Group(func(r chi.Router) {
				r.Use(managers)
				r.Post("/invite", authcontrollers.TeamInvite(deps.Team, logg))
				r.Post("/team", authcontrollers.TeamCreateMember(deps.Team, logg))
				r.Patch("/team/{id}/role", authcontrollers.TeamChangeRole(deps.Team, logg))
				r.Patch("/team/{id}/status", authcontrollers.TeamChangeStatus(deps.Team, logg))
				r.Delete("/team/{id}", authcontrollers.TeamRemove(deps.Team, logg))
			})
		})
	})

	return r
}
