// Package identity is the gateway's identity store (C2): principals, API
// keys, and users. Persistence is delegated to whatever Store is wired in;
// this package ships an in-memory reference Store, since persisting users
// and keys is out of scope for the gateway itself.
package identity

import (
	"container/list"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

var ErrNotFound = errors.New("identity: not found")

// Principal is the resolved identity attached to a request by C4. It is
// constructed fresh per request and never persisted.
type Principal struct {
	ID          string
	Email       string
	Tier        string
	APIKeyID    string
	Permissions map[string]bool
}

// HasPermission reports whether the principal holds perm or the wildcard.
func (p Principal) HasPermission(perm string) bool {
	return p.Permissions["*"] || p.Permissions[perm]
}

// Usage is the monotonic usage tally carried by an ApiKey.
type Usage struct {
	Requests int64
	InTokens int64
	OutTokens int64
	CostUSD  float64
}

// ApiKey is a credential issued to a principal. The cleartext secret is
// never stored in recoverable form; only HashedSecret (argon2id) and the
// last 4 characters (DisplaySuffix, for list-keys masking) are retained.
type ApiKey struct {
	ID            string
	PrincipalID   string
	Name          string
	HashedSecret  string
	DisplaySuffix string
	Tier          string
	Permissions   map[string]bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
	LastUsedAt    time.Time
	Usage         Usage
	Active        bool
}

// Masked returns a display-only representation, e.g. "sk-…abcd", safe to
// return from list-keys. The full secret is never recoverable from it.
func (k ApiKey) Masked() string {
	if len(k.DisplaySuffix) < 4 {
		return "sk-…"
	}
	return "sk-…" + k.DisplaySuffix
}

// Expired reports whether the key has passed its expiry.
func (k ApiKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// User is an upserted identity, typically created by the OAuth callback.
type User struct {
	ID        string
	Email     string
	Name      string
	Tier      string
	CreatedAt time.Time
}

// argon2 parameters. Tuned for an interactive auth path: ~tens of
// milliseconds per verification, not a batch KDF workload.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

func hashSecret(cleartext string, salt []byte) string {
	sum := argon2.IDKey([]byte(cleartext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("%s$%s", base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(sum))
}

func verifySecret(cleartext, encoded string) bool {
	parts := splitOnce(encoded, '$')
	if parts == nil {
		return false
	}
	saltB64, sumB64 := parts[0], parts[1]
	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(sumB64)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(cleartext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomID(prefix string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return prefix + "_" + hex.EncodeToString(buf)
}

// lookupCacheEntry caches a verified secret's resolved key, keyed by a hash
// prefix of the cleartext so the cleartext itself is never the cache key.
type lookupCacheEntry struct {
	keyID     string
	expiresAt time.Time
}

// lookupCache is a small bounded LRU. It is an accelerator only: a hit still
// requires a full argon2id re-verification against the stored hash before
// the cached principal is trusted.
type lookupCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
}

type cacheElem struct {
	cacheKey string
	entry    lookupCacheEntry
}

func newLookupCache(capacity int, ttl time.Duration) *lookupCache {
	return &lookupCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func cacheKeyFor(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return hex.EncodeToString(sum[:16])
}

func (c *lookupCache) get(cleartext string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKeyFor(cleartext)
	el, ok := c.items[ck]
	if !ok {
		return "", false
	}
	entry := el.Value.(*cacheElem).entry
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, ck)
		return "", false
	}
	c.ll.MoveToFront(el)
	return entry.keyID, true
}

func (c *lookupCache) put(cleartext, keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKeyFor(cleartext)
	if el, ok := c.items[ck]; ok {
		el.Value.(*cacheElem).entry = lookupCacheEntry{keyID: keyID, expiresAt: time.Now().Add(c.ttl)}
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheElem{cacheKey: ck, entry: lookupCacheEntry{keyID: keyID, expiresAt: time.Now().Add(c.ttl)}})
	c.items[ck] = el
	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*cacheElem).cacheKey)
		}
	}
}

// evictKey removes any cached entry pointing at keyID. RevokeKey calls it
// so a revoked key never serves stale cache hits.
func (c *lookupCache) evictKey(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ck, el := range c.items {
		if el.Value.(*cacheElem).entry.keyID == keyID {
			c.ll.Remove(el)
			delete(c.items, ck)
		}
	}
}

// Store is the C2 identity store.
type Store struct {
	mu    sync.RWMutex
	keys  map[string]*ApiKey
	users map[string]*User // by email
	cache *lookupCache
}

// New returns an in-memory reference Store.
func New() *Store {
	return &Store{
		keys:  make(map[string]*ApiKey),
		users: make(map[string]*User),
		cache: newLookupCache(4096, 5*time.Minute),
	}
}

// LookupKeyBySecret resolves an active, unexpired ApiKey from its
// cleartext secret using constant-time hash comparison.
func (s *Store) LookupKeyBySecret(cleartext string) (*ApiKey, error) {
	if cached, ok := s.cache.get(cleartext); ok {
		s.mu.RLock()
		k, exists := s.keys[cached]
		s.mu.RUnlock()
		if exists && verifySecret(cleartext, k.HashedSecret) && k.Active && !k.Expired(time.Now()) {
			return k, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if !verifySecret(cleartext, k.HashedSecret) {
			continue
		}
		if !k.Active || k.Expired(time.Now()) {
			return nil, ErrNotFound
		}
		s.cache.put(cleartext, k.ID)
		return k, nil
	}
	return nil, ErrNotFound
}

// CreateKey mints a new ApiKey for principal and returns it alongside the
// cleartext secret, which is never recoverable afterward.
func (s *Store) CreateKey(principalID, name, tier string) (*ApiKey, string, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, "", fmt.Errorf("identity: generate secret: %w", err)
	}
	cleartext := fmt.Sprintf("sk-%s-%s", tier, secret)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", fmt.Errorf("identity: generate salt: %w", err)
	}

	now := time.Now()
	k := &ApiKey{
		ID:            randomID("key"),
		PrincipalID:   principalID,
		Name:          name,
		HashedSecret:  hashSecret(cleartext, salt),
		DisplaySuffix: cleartext[len(cleartext)-4:],
		Tier:          tier,
		Permissions:   map[string]bool{"*": true},
		CreatedAt:     now,
		ExpiresAt:     now.Add(90 * 24 * time.Hour),
		Active:        true,
	}

	s.mu.Lock()
	s.keys[k.ID] = k
	s.mu.Unlock()

	return k, cleartext, nil
}

// ListKeys returns every key owned by principalID. Secrets are never
// included; callers display Masked().
func (s *Store) ListKeys(principalID string) []*ApiKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ApiKey, 0)
	for _, k := range s.keys {
		if k.PrincipalID == principalID {
			out = append(out, k)
		}
	}
	return out
}

// RevokeKey idempotently marks keyID inactive. It never deletes history.
func (s *Store) RevokeKey(principalID, keyID string) error {
	s.mu.Lock()
	k, ok := s.keys[keyID]
	if !ok || k.PrincipalID != principalID {
		s.mu.Unlock()
		return ErrNotFound
	}
	k.Active = false
	s.mu.Unlock()

	s.cache.evictKey(keyID)
	return nil
}

// BumpUsage monotonically adds to keyID's usage tally and refreshes
// last-used. Safe to call from the request hot path.
func (s *Store) BumpUsage(keyID string, requests, inTokens, outTokens int64, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return ErrNotFound
	}
	k.Usage.Requests += requests
	k.Usage.InTokens += inTokens
	k.Usage.OutTokens += outTokens
	k.Usage.CostUSD += costUSD
	k.LastUsedAt = time.Now()
	return nil
}

// UpsertUserByEmail creates or updates a user record, used by the OAuth
// callback to resolve a federated identity to a local Principal.
func (s *Store) UpsertUserByEmail(email, name, tier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		u.Name = name
		return u, nil
	}
	u := &User{
		ID:        randomID("user"),
		Email:     email,
		Name:      name,
		Tier:      tier,
		CreatedAt: time.Now(),
	}
	s.users[email] = u
	return u, nil
}

// GetUserByID is used by C4 to resolve a JWT subject claim to a principal.
func (s *Store) GetUserByID(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrNotFound
}
