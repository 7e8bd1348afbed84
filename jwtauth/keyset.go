// Package jwtauth is the bearer-token half of the authenticator (C4):
// issuing and verifying signed JWTs for principals resolved via OAuth.
package jwtauth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet signs and verifies tokens, supporting rotation without downtime:
// a new active key signs new tokens while old keys remain verifiable until
// evicted.
type KeySet interface {
	Sign(claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// RS256KeySet is the production KeySet: RSA keypairs, kid-indexed, with the
// current key used for signing and all retained keys available for
// verification.
type RS256KeySet struct {
	mu         sync.RWMutex
	currentKID string
	private    map[string]*rsa.PrivateKey
}

// NewRS256KeySet loads a single RSA keypair from PEM-encoded material and
// installs it as the current signing key.
func NewRS256KeySet(privateKeyPEM string) (*RS256KeySet, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("jwtauth: no PEM block found in private key")
	}

	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: parse private key: %w", err)
	}

	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	return &RS256KeySet{
		currentKID: kid,
		private:    map[string]*rsa.PrivateKey{kid: key},
	}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// Rotate installs a newly generated key as current, evicting the oldest
// retained key once more than 3 are held so verification still accepts
// recently-rotated-out tokens for a bounded window.
func (ks *RS256KeySet) Rotate(newKey *rsa.PrivateKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	ks.private[kid] = newKey
	ks.currentKID = kid

	if len(ks.private) > 3 {
		// kids embed a fixed-width UnixNano timestamp, so the smallest kid
		// is the oldest key.
		oldest := ""
		for k := range ks.private {
			if k != kid && (oldest == "" || k < oldest) {
				oldest = k
			}
		}
		delete(ks.private, oldest)
	}
}

func (ks *RS256KeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.private[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("jwtauth: no active signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *RS256KeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("jwtauth: unexpected signing method %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("jwtauth: missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.private[kid]
		if !exists {
			return nil, fmt.Errorf("jwtauth: unknown kid %q", kid)
		}
		return &key.PublicKey, nil
	}
}

// HS256DevKeySet is a single-secret KeySet for local development only. The
// gateway must refuse to construct one outside Env == "development" (§4.4,
// §9): it exists purely so a developer can run the gateway without
// generating an RSA keypair.
type HS256DevKeySet struct {
	secret []byte
}

func NewHS256DevKeySet(secret string) *HS256DevKeySet {
	return &HS256DevKeySet{secret: []byte(secret)}
}

func (ks *HS256DevKeySet) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ks.secret)
}

func (ks *HS256DevKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwtauth: unexpected signing method %v", token.Header["alg"])
		}
		return ks.secret, nil
	}
}
