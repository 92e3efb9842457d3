package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Credential is a provider-issued token or session id with its local expiry
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at t
func (c Credential) ValidAt(t time.Time) bool {
	return c.Token != "" && t.Before(c.ExpiresAt)
}

// safeTTL shortens a provider-declared lifetime to 90% of its value.
// Providers that declare none get fallback.
func safeTTL(declared, fallback time.Duration) time.Duration {
	if declared <= 0 {
		return fallback
	}
	return declared * 9 / 10
}

// credentialCache holds one adapter's credential. Concurrent callers that find
// it expired share a single login.
type credentialCache struct {
	mu    sync.RWMutex
	cred  Credential
	now   func() time.Time
	group singleflight.Group
}

func newCredentialCache(now func() time.Time) *credentialCache {
	if now == nil {
		now = time.Now
	}
	return &credentialCache{now: now}
}

func (c *credentialCache) current() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// get returns the cached credential or joins a shared login. The login runs
// detached from any one caller's cancellation; each caller stops waiting when
// its own ctx is done.
func (c *credentialCache) get(ctx context.Context, login func(ctx context.Context) (Credential, error)) (Credential, error) {
	if cred := c.current(); cred.ValidAt(c.now()) {
		return cred, nil
	}

	loginCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("login", func() (any, error) {
		// another caller may have refreshed while we waited for the flight
		if cred := c.current(); cred.ValidAt(c.now()) {
			return cred, nil
		}

		fresh, err := login(loginCtx)
		if err != nil {
			return Credential{}, err
		}

		c.mu.Lock()
		c.cred = fresh
		c.mu.Unlock()

		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// invalidate drops the cached credential, forcing the next call to log in
func (c *credentialCache) invalidate() {
	c.mu.Lock()
	c.cred = Credential{}
	c.mu.Unlock()
}
