package middleware

import (
	"context"

	"github.com/alfreddev/aigateway/identity"
)

type contextKey string

const (
	principalKey         contextKey = "principal"
	apiKeyCleartextKey   contextKey = "api_key_cleartext"
	requestIDKey         contextKey = "request_id"
	clientIPKey          contextKey = "client_ip"
	concurrencyActiveKey contextKey = "concurrency_active"
)

// WithPrincipal attaches the resolved principal to the request context.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal attached by the authenticator, if any.
func GetPrincipal(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey).(*identity.Principal)
	return p
}

// WithAPIKeyCleartext attaches the cleartext secret to the request context
// handed downstream. No gateway component reads it back; the admission
// limiters key on the principal id instead.
func WithAPIKeyCleartext(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, apiKeyCleartextKey, secret)
}

// GetAPIKey returns the cleartext API key secret captured earlier in the
// pipeline, if any.
func GetAPIKey(ctx context.Context) string {
	s, _ := ctx.Value(apiKeyCleartextKey).(string)
	return s
}

// WithRequestID attaches the request's correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request's correlation id, if any.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP attaches the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the resolved client IP, if any.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// GetConcurrencyActive retrieves the active concurrent request count for
// the principal attached to the request context.
func GetConcurrencyActive(ctx context.Context) int {
	if v, ok := ctx.Value(concurrencyActiveKey).(int); ok {
		return v
	}
	return 0
}
