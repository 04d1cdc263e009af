// Package limiter throttles failed sign-in attempts per (wallet, client ip).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls sign-in attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a sign-in is currently allowed and optional retry-after.
	Allow(ctx context.Context, wallet string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a verified signature.
	Success(ctx context.Context, wallet string, ipHash []byte) error
	// Failure records a rejected attempt; may place a temporary block.
	Failure(ctx context.Context, wallet string, ipHash []byte) (bool, time.Duration, error)
}

// Defaults used by the server.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 5
	DefaultBlockFor = 15 * time.Minute
)

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
