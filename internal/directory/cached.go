package directory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gradewise/moderation-server/internal/model"
)

// Cached wraps a Directory with a ristretto cache. Profiles are display
// data only, so short staleness is acceptable; moderation state is never
// cached here.
type Cached struct {
	inner Directory
	cache *ristretto.Cache[int64, *Profile]
	ttl   time.Duration
}

// NewCached - a caching decorator around the directory.
func NewCached(inner Directory, ttl time.Duration) (*Cached, error) {
	const (
		numCounters = 10_000
		maxCost     = 1 << 20
		bufferItems = 64
	)

	cache, err := ristretto.NewCache(&ristretto.Config[int64, *Profile]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

// Profile - serve from cache, falling through to the inner directory.
// Lookups that fail are not negatively cached: a user missing from the
// directory may appear shortly after registration.
func (d *Cached) Profile(ctx context.Context, id model.UserID) (*Profile, error) {
	if profile, ok := d.cache.Get(id.ToInt64()); ok {
		return profile, nil
	}

	profile, err := d.inner.Profile(ctx, id)
	if err != nil {
		return nil, err
	}

	d.cache.SetWithTTL(id.ToInt64(), profile, 1, d.ttl)

	return profile, nil
}

// Close releases the cache resources.
func (d *Cached) Close() {
	d.cache.Close()
}
