package jwtauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GatewayClaims extends the registered JWT claims with the fields the
// gateway needs to resolve a request without a second lookup.
type GatewayClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// TokenManager mints and validates bearer tokens against a KeySet.
type TokenManager struct {
	keySet   KeySet
	issuer   string
	audience string
}

func NewTokenManager(ks KeySet, issuer, audience string) *TokenManager {
	return &TokenManager{keySet: ks, issuer: issuer, audience: audience}
}

// GenerateToken mints a signed JWT for subject (a User ID) valid for ttl.
func (tm *TokenManager) GenerateToken(subject, email, tier string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := GatewayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
		},
		Email: email,
		Tier:  tier,
	}
	return tm.keySet.Sign(claims)
}

// ValidateToken parses and verifies tokenString, checking signature,
// expiry, issuer, and audience.
func (tm *TokenManager) ValidateToken(tokenString string) (*GatewayClaims, error) {
	claims := &GatewayClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keySet.KeyFunc(),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: validate token: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
