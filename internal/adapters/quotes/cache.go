package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"cryptofolio/internal/adapters/redis"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// CachedSource decorates a Source with a Redis cache so repeated portfolio
// refreshes within the TTL do not hit the upstream API
type CachedSource struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
}

// NewCachedSource creates new cached quote source
func NewCachedSource(source Source, cache *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}
}

func cacheKey(assetID string) string {
	return fmt.Sprintf("quote:%s", assetID)
}

// GetQuotes returns cached quotes where fresh and fetches the rest from the
// underlying source in one batch
func (cs *CachedSource) GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote, len(assetIDs))
	missing := make([]string, 0, len(assetIDs))

	for _, assetID := range assetIDs {
		data, err := cs.cache.Get(ctx, cacheKey(assetID)).Bytes()
		if err != nil {
			if err != goredis.Nil {
				logger.Warn("quote cache read failed",
					zap.String("asset_id", assetID),
					zap.Error(err),
				)
			}
			missing = append(missing, assetID)
			continue
		}

		var quote models.Quote
		if err := json.Unmarshal(data, &quote); err != nil {
			logger.Warn("corrupt cached quote, refetching",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
			missing = append(missing, assetID)
			continue
		}

		quotes[assetID] = quote
	}

	if len(missing) == 0 {
		return quotes, nil
	}

	fetched, err := cs.source.GetQuotes(ctx, missing)
	if err != nil {
		return nil, err
	}

	for assetID, quote := range fetched {
		quotes[assetID] = quote

		data, err := json.Marshal(quote)
		if err != nil {
			continue
		}
		if err := cs.cache.Set(ctx, cacheKey(assetID), data, cs.ttl).Err(); err != nil {
			logger.Warn("quote cache write failed",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
		}
	}

	return quotes, nil
}

// Invalidate removes cached quotes for the given asset ids
func (cs *CachedSource) Invalidate(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	keys := make([]string, len(assetIDs))
	for i, assetID := range assetIDs {
		keys[i] = cacheKey(assetID)
	}
	return cs.cache.Del(ctx, keys...).Err()
}
