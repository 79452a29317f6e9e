package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-smshook/core"
)

const deliveredFragmentCacheKeyPrefix = "go-smshook::delivered_fragment::v1"

// errNotDelivered keeps negative lookups out of the cache: another process
// may record the id at any moment.
var errNotDelivered = errors.New("sqlstore: fragment not delivered")

// CachedDeliveryLedger fronts a DeliveryLedger with a read-through cache of
// positive lookups. Replays of a delivered group then skip the database.
type CachedDeliveryLedger struct {
	base  core.DeliveryLedger
	cache repositorycache.CacheService
}

func NewCachedDeliveryLedger(
	base core.DeliveryLedger,
	cacheService repositorycache.CacheService,
) (*CachedDeliveryLedger, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery ledger is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: delivery ledger cache service is required")
	}
	return &CachedDeliveryLedger{base: base, cache: cacheService}, nil
}

// DeliveredFragmentCacheKey returns
// go-smshook::delivered_fragment::v1::<message_id> with the id URL-path
// escaped.
func DeliveredFragmentCacheKey(messageID string) (string, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return "", fmt.Errorf("sqlstore: message id is required")
	}
	return deliveredFragmentCacheKeyPrefix + "::" + url.PathEscape(messageID), nil
}

func (l *CachedDeliveryLedger) Delivered(ctx context.Context, messageID string) (bool, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return false, fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	cacheKey, err := DeliveredFragmentCacheKey(messageID)
	if err != nil {
		return false, err
	}
	delivered, err := repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (bool, error) {
		found, fetchErr := l.base.Delivered(ctx, strings.TrimSpace(messageID))
		if fetchErr != nil {
			return false, fetchErr
		}
		if !found {
			return false, errNotDelivered
		}
		return true, nil
	})
	if errors.Is(err, errNotDelivered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return delivered, nil
}

func (l *CachedDeliveryLedger) MarkDelivered(ctx context.Context, ref string, messageIDs []string, ttl time.Duration) error {
	if l == nil || l.base == nil || l.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	if err := l.base.MarkDelivered(ctx, ref, messageIDs, ttl); err != nil {
		return err
	}
	for _, messageID := range messageIDs {
		cacheKey, err := DeliveredFragmentCacheKey(messageID)
		if err != nil {
			continue
		}
		if err := l.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

// PurgeExpired only reaches the base ledger. Cached positives age out with
// the cache TTL, which should stay below the delivered TTL.
func (l *CachedDeliveryLedger) PurgeExpired(ctx context.Context) (int, error) {
	if l == nil || l.base == nil {
		return 0, fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	return l.base.PurgeExpired(ctx)
}
