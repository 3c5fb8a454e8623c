package parties

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/cache"
)

// Directory serves full party listings from redis, loading them from the
// repository at most once per key among concurrent callers.
type Directory struct {
	repo   Repository
	client redis.Cmdable
	ttl    time.Duration
	group  singleflight.Group
}

// NewDirectory constructs a Directory. A nil client disables caching.
func NewDirectory(repo Repository, client redis.Cmdable, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{repo: repo, client: client, ttl: ttl}
}

func directoryKey(kind Kind) string {
	return fmt.Sprintf("parties:directory:%s", kind)
}

// Snapshot returns every party of kind in id order.
func (d *Directory) Snapshot(ctx context.Context, kind Kind) ([]Party, error) {
	if d.client != nil {
		var cached []Party
		err := cache.GetJSON(ctx, d.client, directoryKey(kind), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}

	resultCh := d.group.DoChan(string(kind), func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		list, err := d.repo.List(loadCtx, ListFilters{Kind: kind})
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []Party{}
		}
		if d.client != nil {
			// a failed write only costs a reload on the next call
			_ = cache.SetJSON(loadCtx, d.client, directoryKey(kind), list, d.ttl)
		}
		return list, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		list := res.Val.([]Party)
		out := make([]Party, len(list))
		copy(out, list)
		return out, nil
	}
}

// Invalidate drops the cached listing for kind.
func (d *Directory) Invalidate(ctx context.Context, kind Kind) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Del(ctx, directoryKey(kind)).Err()
}
