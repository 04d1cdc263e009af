package service

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// maxNonces bounds outstanding sign-in nonces; the least recently issued are evicted first.
const maxNonces = 100_000

// NonceStore remembers issued sign-in nonces until they expire or are used once.
// Values are the bound address; empty accepts any signer.
type NonceStore struct {
	cache *ttlcache.Cache[string, string]
}

// NewNonceStore constructs a store whose nonces live for ttl and starts its expiry loop.
func NewNonceStore(ttl time.Duration) *NonceStore {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithCapacity[string, string](maxNonces),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &NonceStore{cache: c}
}

// Put remembers nonce for address and returns its expiry.
func (s *NonceStore) Put(nonce, address string) time.Time {
	return s.cache.Set(nonce, address, ttlcache.DefaultTTL).ExpiresAt()
}

// Consume removes nonce and reports whether it was live and bound to address (or unbound).
func (s *NonceStore) Consume(nonce, address string) bool {
	item, ok := s.cache.GetAndDelete(nonce)
	if !ok {
		return false
	}
	bound := item.Value()
	return bound == "" || bound == address
}

// Len returns the number of live nonces.
func (s *NonceStore) Len() int { return s.cache.Len() }

// Close stops the expiry loop.
func (s *NonceStore) Close() { s.cache.Stop() }
