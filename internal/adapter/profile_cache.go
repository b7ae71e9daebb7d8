package adapter

import (
	"context"
	"sync"
	"time"
)

type Profile struct {
	Username   string `json:"username"`
	AvatarURL  string `json:"avatar_url"`
	ProfileURL string `json:"profile_url"`
}

type cachedProfile struct {
	profile   Profile
	fetchedAt time.Time
}

// ProfileCache memoizes profile lookups per account. Entries expire after ttl or
// when the account's credential changes.
type ProfileCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]cachedProfile
}

func NewProfileCache(ttl time.Duration) *ProfileCache {
	return &ProfileCache{ttl: ttl, now: time.Now, entries: make(map[int64]cachedProfile)}
}

func (c *ProfileCache) Get(ctx context.Context, accountID int64, a Adapter) (Profile, error) {
	c.mu.Lock()
	e, ok := c.entries[accountID]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.profile, nil
	}

	var p Profile
	var err error
	if p.Username, err = a.Username(ctx); err != nil {
		return Profile{}, err
	}
	if p.AvatarURL, err = a.AvatarURL(ctx); err != nil {
		return Profile{}, err
	}
	if p.ProfileURL, err = a.ProfileURL(ctx); err != nil {
		return Profile{}, err
	}

	c.mu.Lock()
	c.entries[accountID] = cachedProfile{profile: p, fetchedAt: c.now()}
	c.mu.Unlock()
	return p, nil
}

func (c *ProfileCache) Invalidate(accountID int64) {
	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()
}
