package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/identity"
	"github.com/angelmondragon/storefront-backend/internal/team"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client := dbtest.Open(t)
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:               "router-secret",
			Issuer:               "storefront-test",
			SessionTTLMinutes:    60,
			InvitationTTLMinutes: 60,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	reg := prometheus.NewRegistry()
	rec, err := identity.NewReconciler(identity.ReconcilerParams{DB: client, Metrics: metrics.NewReconcileMetrics(reg)})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	authSvc, err := auth.NewService(auth.ServiceParams{DB: client, Reconciler: rec, JWTConfig: cfg.JWT})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	teamSvc, err := team.NewService(team.ServiceParams{
		DB:     client,
		JWT:    cfg.JWT,
		Outbox: outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	if err != nil {
		t.Fatalf("team service: %v", err)
	}

	handler := NewRouter(cfg, nil, Dependencies{
		DB:          client,
		Redis:       stubPinger{},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Auth:        authSvc,
		Team:        teamSvc,
	})
	return &testServer{t: t, handler: handler}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)

	var env envelope
	if resp.Body.Len() > 0 && resp.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.Code, env
}

func (s *testServer) register(externalID, email, orgID string) auth.SessionResponse {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"externalId":       externalID,
		"email":            email,
		"organizationId":   orgID,
		"organizationName": orgID + " inc",
	})
	if status != http.StatusOK {
		s.t.Fatalf("register %s: status %d %s", email, status, env.Error.Message)
	}
	var out auth.SessionResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		s.t.Fatalf("decode session: %v", err)
	}
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	if status, _ := srv.do(http.MethodGet, "/health/live", "", nil); status != http.StatusOK {
		t.Fatalf("live: %d", status)
	}
	if status, _ := srv.do(http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready: %d", status)
	}

	srv.register("ext-1", "alice@x.com", "org-1")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	srv.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("storefront_reconcile_decisions_total")) {
		t.Fatalf("expected reconcile metrics, got %s", resp.Body.String())
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`storefront_http_requests_total{method="GET",route="/health/live",status="200"} 1`)) {
		t.Fatalf("expected per-route request counter, got %s", resp.Body.String())
	}
}

func TestReadinessFailsWhenDependencyDown(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := NewRouter(cfg, nil, Dependencies{DB: stubPinger{err: context.DeadlineExceeded}})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAuthenticatedRoutesRequireSession(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/auth/me", "/auth/team", "/auth/organizations"} {
		status, env := srv.do(http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
		if env.Error.Code != string(pkgerrors.CodeUnauthorized) {
			t.Fatalf("%s: unexpected code %s", path, env.Error.Code)
		}
	}
	if status, _ := srv.do(http.MethodGet, "/auth/me", "garbage", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "alice@x.com"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if env.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", env.Error.Code)
	}
}

func TestTeamLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.register("ext-owner", "owner@x.com", "org-1")
	customer := srv.register("ext-cust", "cust@x.com", "org-1")
	bob := srv.register("ext-bob", "bob@x.com", "org-2")

	if status, _ := srv.do(http.MethodPost, "/auth/invite", customer.Token, map[string]string{"email": "bob@x.com", "role": "manager"}); status != http.StatusForbidden {
		t.Fatalf("customer invite: expected 403, got %d", status)
	}

	status, env := srv.do(http.MethodPost, "/auth/invite", owner.Token, map[string]string{"email": "bob@x.com", "role": "manager"})
	if status != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d (%s)", status, env.Error.Message)
	}
	var invite team.InviteResult
	if err := json.Unmarshal(env.Data, &invite); err != nil {
		t.Fatalf("decode invite: %v", err)
	}

	status, env = srv.do(http.MethodGet, "/auth/invite/verify?token="+invite.InvitationToken, "", nil)
	if status != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", status)
	}

	if status, _ := srv.do(http.MethodPost, "/auth/invite/accept", customer.Token, map[string]string{"token": invite.InvitationToken}); status != http.StatusForbidden {
		t.Fatalf("accept with other email: expected 403, got %d", status)
	}

	status, env = srv.do(http.MethodPost, "/auth/invite/accept", bob.Token, map[string]string{"token": invite.InvitationToken})
	if status != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d (%s)", status, env.Error.Message)
	}
	var accepted auth.SessionResponse
	if err := json.Unmarshal(env.Data, &accepted); err != nil {
		t.Fatalf("decode accept: %v", err)
	}
	if accepted.User.OrganizationID != "org-1" || accepted.User.Role != "manager" {
		t.Fatalf("unexpected accepted session user %+v", accepted.User)
	}

	status, env = srv.do(http.MethodPost, "/auth/invite/accept", bob.Token, map[string]string{"token": invite.InvitationToken})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("second accept: expected 422, got %d", status)
	}

	status, env = srv.do(http.MethodGet, "/auth/team", accepted.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("team: expected 200, got %d", status)
	}
	var roster struct {
		Members []map[string]any `json:"members"`
	}
	if err := json.Unmarshal(env.Data, &roster); err != nil {
		t.Fatalf("decode team: %v", err)
	}
	if len(roster.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(roster.Members))
	}

	ownerID := owner.User.MembershipID.String()
	status, env = srv.do(http.MethodPatch, "/auth/team/"+ownerID+"/role", accepted.Token, map[string]string{"role": "customer"})
	if status != http.StatusForbidden {
		t.Fatalf("manager demoting owner: expected 403, got %d", status)
	}

	status, env = srv.do(http.MethodPatch, "/auth/team/"+ownerID+"/role", owner.Token, map[string]string{"role": "customer"})
	if status != http.StatusForbidden || env.Error.Code != string(pkgerrors.CodeLastOwner) {
		t.Fatalf("last owner demotion: expected LAST_OWNER_VIOLATION, got %d %s", status, env.Error.Code)
	}

	status, _ = srv.do(http.MethodDelete, "/auth/team/"+ownerID, owner.Token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("self removal: expected 403, got %d", status)
	}

	customerID := customer.User.MembershipID.String()
	status, _ = srv.do(http.MethodPatch, "/auth/team/"+customerID+"/status", owner.Token, map[string]string{"status": "inactive"})
	if status != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", status)
	}
	status, _ = srv.do(http.MethodDelete, "/auth/team/"+customerID, owner.Token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d", status)
	}
	status, _ = srv.do(http.MethodDelete, "/auth/team/not-a-uuid", owner.Token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", status)
	}
}

func TestOrganizationsAndSwitch(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register("ext-a", "alice@x.com", "org-1")
	srv.register("ext-b", "bob@x.com", "org-2")
	srv.register("ext-a", "alice@x.com", "org-2")

	status, env := srv.do(http.MethodGet, "/auth/organizations", alice.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("organizations: %d", status)
	}
	var orgs struct {
		Organizations []auth.OrganizationMembership `json:"organizations"`
	}
	if err := json.Unmarshal(env.Data, &orgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orgs.Organizations) != 2 {
		t.Fatalf("expected 2 organizations, got %d", len(orgs.Organizations))
	}

	status, env = srv.do(http.MethodPost, "/auth/switch-organization", alice.Token, map[string]string{"organizationId": "org-2"})
	if status != http.StatusOK {
		t.Fatalf("switch: %d %s", status, env.Error.Message)
	}
	var switched auth.SessionResponse
	if err := json.Unmarshal(env.Data, &switched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if switched.User.Role != "customer" {
		t.Fatalf("expected customer role, got %s", switched.User.Role)
	}

	status, env = srv.do(http.MethodPost, "/auth/switch-organization", alice.Token, map[string]string{"organizationId": "org-9"})
	if status != http.StatusForbidden || env.Error.Code != string(pkgerrors.CodeNotAMember) {
		t.Fatalf("expected NOT_A_MEMBER, got %d %s", status, env.Error.Code)
	}
}
