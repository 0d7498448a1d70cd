package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

// CachedDirectory serves user lookups by id from an in-process cache. Users
// are never updated in place, so entries only expire.
type CachedDirectory struct {
	Repository
	cache *cache.Cache
}

func NewCachedDirectory(repo Repository, ttl, cleanup time.Duration) *CachedDirectory {
	return &CachedDirectory{
		Repository: repo,
		cache:      cache.New(ttl, cleanup),
	}
}

func (d *CachedDirectory) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	key := tenant.FromContext(ctx) + ":" + id.String()
	if cached, found := d.cache.Get(key); found {
		u := cached.(User)
		return &u, nil
	}

	u, err := d.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	d.cache.Set(key, *u, cache.DefaultExpiration)
	return u, nil
}
