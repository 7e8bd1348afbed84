// Package oauthflow implements the gateway's two OAuth endpoints:
// /auth/oauth/:provider (start login) and /auth/oauth/:provider/callback
// (exchange code, resolve the federated identity, mint a session token).
//
// State is a random value stored in C1 under a short TTL rather than a
// signed cookie, matching the platform repo's oidc flow package: state
// only ever needs to round-trip through the provider's redirect, so a
// server-side nonce is simpler than asking the client to carry it.
package oauthflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/jwtauth"
	"github.com/alfreddev/aigateway/kv"
	"github.com/alfreddev/aigateway/middleware"
)

const (
	stateTTL     = 10 * time.Minute
	sessionTTL   = 24 * time.Hour
	stateKeyFmt  = "oauth:state:%s"
	httpClientTO = 10 * time.Second
)

// knownIssuers names providers that publish OIDC discovery and sign an
// id_token. GitHub is OAuth2-only (no id_token) and resolves identity via
// its REST user endpoint instead.
var knownIssuers = map[string]string{
	"google": "https://accounts.google.com",
}

// userInfo is the subset of claims/fields the gateway needs, normalized
// across providers that return an id_token and providers that return a
// REST user-info payload.
type userInfo struct {
	Email string
	Name  string
}

// Flow drives the OAuth2/OIDC login and callback handlers for every
// configured provider.
type Flow struct {
	providers map[string]config.OAuthProvider
	store     *kv.Store
	identity  *identity.Store
	tokens    *jwtauth.TokenManager
	logger    zerolog.Logger
	client    *http.Client

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
}

func New(providers map[string]config.OAuthProvider, store *kv.Store, ids *identity.Store, tokens *jwtauth.TokenManager, logger zerolog.Logger) *Flow {
	return &Flow{
		providers: providers,
		store:     store,
		identity:  ids,
		tokens:    tokens,
		logger:    logger,
		client:    &http.Client{Timeout: httpClientTO},
		verifiers: make(map[string]*oidc.IDTokenVerifier),
	}
}

func (f *Flow) oauth2Config(p config.OAuthProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// verifierFor lazily builds and caches an ID token verifier for providers
// with a known OIDC issuer. Returns nil, nil for providers without one.
func (f *Flow) verifierFor(ctx context.Context, provider string) (*oidc.IDTokenVerifier, error) {
	issuer, ok := knownIssuers[provider]
	if !ok {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.verifiers[provider]; ok {
		return v, nil
	}

	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oauthflow: discover %s issuer: %w", provider, err)
	}
	v := p.Verifier(&oidc.Config{ClientID: f.providers[provider].ClientID})
	f.verifiers[provider] = v
	return v, nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// StartLogin redirects the client to provider's consent screen, stashing
// a random state value in C1 so the callback can confirm this exchange
// was actually initiated by the gateway.
func (f *Flow) StartLogin(w http.ResponseWriter, r *http.Request, provider string) {
	p, ok := f.providers[provider]
	if !ok {
		middleware.WriteError(w, r, gwerror.New(gwerror.NotFound, "unknown oauth provider: "+provider))
		return
	}

	state, err := randomState()
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}
	if err := f.store.Set(r.Context(), fmt.Sprintf(stateKeyFmt, state), provider, stateTTL); err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}

	f.logger.Debug().Str("provider", provider).Msg("oauth login started")
	http.Redirect(w, r, f.oauth2Config(p).AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, resolves the caller's
// email/name (via id_token where the provider signs one, otherwise via
// its user-info endpoint), upserts a User, and mints a session JWT.
func (f *Flow) HandleCallback(w http.ResponseWriter, r *http.Request, provider string) {
	ctx := r.Context()
	p, ok := f.providers[provider]
	if !ok {
		middleware.WriteError(w, r, gwerror.New(gwerror.NotFound, "unknown oauth provider: "+provider))
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.CredentialsInvalid, "oauth provider denied the request: "+errParam))
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "missing state or code"))
		return
	}

	stateKey := fmt.Sprintf(stateKeyFmt, state)
	storedProvider, found, err := f.store.Get(ctx, stateKey)
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}
	if !found || storedProvider != provider {
		middleware.WriteError(w, r, gwerror.New(gwerror.CredentialsInvalid, "oauth state mismatch or expired"))
		return
	}
	_ = f.store.Del(ctx, stateKey)

	oauth2Tok, err := f.oauth2Config(p).Exchange(ctx, code)
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.UpstreamError, err))
		return
	}

	info, err := f.resolveUser(ctx, provider, oauth2Tok)
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.UpstreamError, err))
		return
	}
	if info.Email == "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.UpstreamError, "oauth provider did not return an email"))
		return
	}

	user, err := f.identity.UpsertUserByEmail(info.Email, info.Name, "free")
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}

	token, err := f.tokens.GenerateToken(user.ID, user.Email, user.Tier, sessionTTL)
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}

	f.logger.Info().Str("provider", provider).Str("userId", user.ID).Msg("oauth login completed")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": token,
		"tokenType":   "Bearer",
		"expiresIn":   int(sessionTTL.Seconds()),
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"tier":  user.Tier,
		},
	})
}

// resolveUser extracts the caller's identity either from a signed
// id_token (when the provider publishes OIDC discovery) or by calling
// the provider's REST user-info endpoint with the access token.
func (f *Flow) resolveUser(ctx context.Context, provider string, tok *oauth2.Token) (userInfo, error) {
	verifier, err := f.verifierFor(ctx, provider)
	if err != nil {
		return userInfo{}, err
	}

	if verifier != nil {
		if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
			idTok, err := verifier.Verify(ctx, raw)
			if err != nil {
				return userInfo{}, fmt.Errorf("oauthflow: verify id_token: %w", err)
			}
			var claims struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := idTok.Claims(&claims); err != nil {
				return userInfo{}, fmt.Errorf("oauthflow: decode id_token claims: %w", err)
			}
			return userInfo{Email: claims.Email, Name: claims.Name}, nil
		}
	}

	return f.fetchUserInfo(ctx, provider, tok)
}

func (f *Flow) fetchUserInfo(ctx context.Context, provider string, tok *oauth2.Token) (userInfo, error) {
	p, ok := f.providers[provider]
	if !ok || p.UserInfoURL == "" {
		return userInfo{}, fmt.Errorf("oauthflow: no user-info endpoint configured for %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return userInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return userInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return userInfo{}, fmt.Errorf("oauthflow: user-info request returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return userInfo{}, err
	}

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"` // github's username field, used when name is absent
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return userInfo{}, fmt.Errorf("oauthflow: decode user-info payload: %w", err)
	}

	name := payload.Name
	if name == "" {
		name = payload.Login
	}
	return userInfo{Email: payload.Email, Name: name}, nil
}
