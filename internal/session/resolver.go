package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lookup returns the principal for the session carried by ctx.
type Lookup interface {
	Me(ctx context.Context) (Principal, error)
}

// ResolverConfig holds configuration for the principal resolver.
type ResolverConfig struct {
	Lookup Lookup
	Logger zerolog.Logger

	// TTL is how long a resolved principal is reused for the same token.
	// Zero disables caching.
	TTL time.Duration
}

type cachedPrincipal struct {
	principal Principal
	expiresAt time.Time
}

// Resolver turns bearer tokens into sessions, caching principals briefly so
// every console request does not cost an extra backend round trip.
type Resolver struct {
	lookup Lookup
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrincipal
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		lookup: cfg.Lookup,
		logger: cfg.Logger,
		ttl:    cfg.TTL,
		now:    time.Now,
		cache:  make(map[string]cachedPrincipal),
	}
}

// Resolve returns the session for token, asking the backend who it belongs to
// unless a fresh cached answer exists. Lookup failures are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, token string) (Context, error) {
	if token == "" {
		return Context{}, ErrMissingToken
	}

	key := tokenKey(token)
	now := r.now()

	if r.ttl > 0 {
		r.mu.Lock()
		entry, ok := r.cache[key]
		r.mu.Unlock()
		if ok && now.Before(entry.expiresAt) {
			return Context{Token: token, Principal: entry.principal}, nil
		}
	}

	principal, err := r.lookup.Me(WithContext(ctx, Context{Token: token}))
	if err != nil {
		r.logger.Debug().Err(err).Msg("principal lookup failed")
		return Context{}, err
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[key] = cachedPrincipal{principal: principal, expiresAt: now.Add(r.ttl)}
		r.evictExpiredLocked(now)
		r.mu.Unlock()
	}

	return Context{Token: token, Principal: principal}, nil
}

// Forget drops any cached principal for token.
func (r *Resolver) Forget(token string) {
	r.mu.Lock()
	delete(r.cache, tokenKey(token))
	r.mu.Unlock()
}

func (r *Resolver) evictExpiredLocked(now time.Time) {
	for k, v := range r.cache {
		if !now.Before(v.expiresAt) {
			delete(r.cache, k)
		}
	}
}

// tokenKey avoids holding raw tokens as map keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
