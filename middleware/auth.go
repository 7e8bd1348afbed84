package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/jwtauth"
)

// Authenticator is C4: resolves an API key or bearer JWT to a Principal
// and attaches it to the request context. §4.4 orders credential
// resolution API-key-first, then bearer JWT, then 401.
type Authenticator struct {
	cfg    *config.Config
	ids    *identity.Store
	tokens *jwtauth.TokenManager
	logger zerolog.Logger
}

func NewAuthenticator(cfg *config.Config, ids *identity.Store, tokens *jwtauth.TokenManager, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		ids:    ids,
		tokens: tokens,
		logger: logger.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate is the C4 middleware. On success it attaches a Principal
// (and, for an API-key credential, the cleartext secret, readable with
// GetAPIKey) to the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get(a.cfg.APIKeyHeader); apiKey != "" {
			principal, gerr := a.authenticateAPIKey(apiKey)
			if gerr != nil {
				WriteError(w, r, gerr)
				return
			}
			ctx := WithPrincipal(r.Context(), principal)
			ctx = WithAPIKeyCleartext(ctx, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if bearer := bearerToken(r); bearer != "" {
			principal, gerr := a.authenticateBearer(bearer)
			if gerr != nil {
				WriteError(w, r, gerr)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
			return
		}

		WriteError(w, r, gwerror.New(gwerror.CredentialsMissing, ""))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func (a *Authenticator) authenticateAPIKey(cleartext string) (*identity.Principal, *gwerror.GatewayError) {
	key, err := a.ids.LookupKeyBySecret(cleartext)
	if err != nil {
		return nil, gwerror.New(gwerror.CredentialsInvalid, "")
	}
	if key.Expired(time.Now()) {
		return nil, gwerror.New(gwerror.CredentialsExpired, "")
	}
	if !key.Active {
		return nil, gwerror.New(gwerror.PrincipalSuspended, "")
	}

	go func(keyID string) {
		_ = a.ids.BumpUsage(keyID, 1, 0, 0, 0)
	}(key.ID)

	return &identity.Principal{
		ID:          key.PrincipalID,
		Tier:        key.Tier,
		APIKeyID:    key.ID,
		Permissions: key.Permissions,
	}, nil
}

func (a *Authenticator) authenticateBearer(token string) (*identity.Principal, *gwerror.GatewayError) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, gwerror.New(gwerror.CredentialsInvalid, "")
	}

	user, err := a.ids.GetUserByID(claims.Subject)
	if err != nil {
		return nil, gwerror.New(gwerror.CredentialsInvalid, "principal no longer exists")
	}

	return &identity.Principal{
		ID:          user.ID,
		Email:       user.Email,
		Tier:        user.Tier,
		Permissions: map[string]bool{"*": true},
	}, nil
}
