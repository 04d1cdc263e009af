package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for the memory store.
type Memory struct {
	mu       sync.Mutex
	window   time.Duration
	maxFails int
	blockFor time.Duration
	entries  map[string]*entry
	now      func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		entries:  map[string]*entry{},
		now:      time.Now,
	}
}

func key(wallet string, ipHash []byte) string { return wallet + "|" + string(ipHash) }

// Allow reports whether sign-in is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, wallet string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key(wallet, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if d := e.blockedUntil.Sub(l.now()); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success resets counters for (wallet, ip).
func (l *Memory) Success(_ context.Context, wallet string, ipHash []byte) error {
	l.mu.Lock()
	delete(l.entries, key(wallet, ipHash))
	l.mu.Unlock()
	return nil
}

// Failure records a rejected attempt; blocks once maxFails is reached inside the window.
func (l *Memory) Failure(_ context.Context, wallet string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key(wallet, ipHash)
	e, ok := l.entries[k]
	if !ok || now.Sub(e.updatedAt) > l.window {
		e = &entry{}
		l.entries[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails < l.maxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.blockFor)
	return true, l.blockFor, nil
}
