package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/jwtauth"
)

func testAuthenticator(t *testing.T) (*Authenticator, *identity.Store, *jwtauth.TokenManager) {
	t.Helper()
	cfg := &config.Config{APIKeyHeader: "X-API-Key"}
	ids := identity.New()
	tokens := jwtauth.NewTokenManager(jwtauth.NewHS256DevKeySet("test-secret"), "aigateway-test", "aigateway-test-clients")
	return NewAuthenticator(cfg, ids, tokens, zerolog.New(io.Discard)), ids, tokens
}

func TestAuthenticateNoCredentialsReturns401(t *testing.T) {
	auth, _, _ := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()

	var called bool
	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rw, req)

	if called {
		t.Fatal("next handler should not run without credentials")
	}
	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Result().StatusCode)
	}
}

func TestAuthenticateValidAPIKeyAttachesPrincipal(t *testing.T) {
	auth, ids, _ := testAuthenticator(t)
	_, cleartext, err := ids.CreateKey("principal-1", "test-key", "free")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("X-API-Key", cleartext)
	rw := httptest.NewRecorder()

	var principal *identity.Principal
	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	})).ServeHTTP(rw, req)

	if principal == nil {
		t.Fatal("expected principal to be attached to context")
	}
	if principal.ID != "principal-1" || principal.Tier != "free" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if GetAPIKey(req.Context()) != "" {
		t.Fatal("api key cleartext should only be visible via the handler's request, not the original")
	}
}

func TestAuthenticateInvalidAPIKeyReturns401(t *testing.T) {
	auth, _, _ := testAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("X-API-Key", "not-a-real-key")
	rw := httptest.NewRecorder()

	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run with an invalid key")
	})).ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Result().StatusCode)
	}
}

func TestAuthenticateRevokedKeyReturns401(t *testing.T) {
	auth, ids, _ := testAuthenticator(t)
	key, cleartext, err := ids.CreateKey("principal-2", "test-key", "free")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if err := ids.RevokeKey("principal-2", key.ID); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("X-API-Key", cleartext)
	rw := httptest.NewRecorder()

	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run with a revoked key")
	})).ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a revoked key, got %d", rw.Result().StatusCode)
	}
}

func TestAuthenticateValidBearerAttachesPrincipal(t *testing.T) {
	auth, ids, tokens := testAuthenticator(t)
	user, err := ids.UpsertUserByEmail("jane@example.com", "Jane Doe", "enterprise")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}
	token, err := tokens.GenerateToken(user.ID, user.Email, user.Tier, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()

	var principal *identity.Principal
	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	})).ServeHTTP(rw, req)

	if principal == nil || principal.ID != user.ID {
		t.Fatalf("expected principal for user %s, got %+v", user.ID, principal)
	}
}

func TestAuthenticatePrefersAPIKeyOverBearer(t *testing.T) {
	auth, ids, tokens := testAuthenticator(t)
	_, cleartext, err := ids.CreateKey("principal-3", "test-key", "free")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	user, err := ids.UpsertUserByEmail("other@example.com", "Other", "enterprise")
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}
	token, err := tokens.GenerateToken(user.ID, user.Email, user.Tier, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("X-API-Key", cleartext)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()

	var principal *identity.Principal
	auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	})).ServeHTTP(rw, req)

	if principal == nil || principal.ID != "principal-3" {
		t.Fatalf("expected the API-key principal to win, got %+v", principal)
	}
}
