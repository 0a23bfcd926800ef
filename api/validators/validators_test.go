package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type sampleBody struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

func TestDecodeJSONBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com","role":"manager"}`))
	var body sampleBody
	if err := DecodeJSONBody(r, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Role != "manager" {
		t.Fatalf("unexpected role %q", body.Role)
	}
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"email":"a@x.com","role":"x","extra":1}`,
		"bad email":     `{"email":"nope","role":"x"}`,
		"missing role":  `{"email":"a@x.com"}`,
		"malformed":     `{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
			var body sampleBody
			err := DecodeJSONBody(r, &body)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

type roleBody struct {
	Role string `json:"role" validate:"required,member_role"`
}

func TestDecodeJSONBodyMemberRole(t *testing.T) {
	for payload, ok := range map[string]bool{
		`{"role":"Manager"}`: true,
		`{"role":"owner"}`:   true,
		`{"role":"admin"}`:   false,
	} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		var body roleBody
		err := DecodeJSONBody(r, &body)
		if ok && err != nil {
			t.Fatalf("%s: unexpected error %v", payload, err)
		}
		if !ok && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", payload, err)
		}
	}
}

func TestDecodeJSONBodyShape(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":    ``,
		"trailing": `{"role":"owner"}{"role":"owner"}`,
		"too big":  `{"role":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		var body roleBody
		if err := DecodeJSONBody(r, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  Ana\x00 María\n ", 0); got != "Ana María" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("Zoë Ölund", 3); got != "Zoë" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc.def"); err != nil || tok != "abc.def" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	if tok, err := BearerToken("abc.def"); err != nil || tok != "abc.def" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	if tok, err := BearerToken("  bearer   abc.def "); err != nil || tok != "abc.def" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	for _, raw := range []string{"", "Bearer ", "Bearer a b", "Basic dXNlcjpwYXNz"} {
		if _, err := BearerToken(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRequiredQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=%20abc%20", nil)
	v, err := RequiredQuery(r, "token", 0)
	if err != nil || v != "abc" {
		t.Fatalf("unexpected %q %v", v, err)
	}
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := RequiredQuery(r, "token", 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	got, err := PathUUID(r, "id")
	if err != nil || got != id {
		t.Fatalf("unexpected %v %v", got, err)
	}

	rctx.URLParams = chi.RouteParams{}
	rctx.URLParams.Add("id", "nope")
	if _, err := PathUUID(r, "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
