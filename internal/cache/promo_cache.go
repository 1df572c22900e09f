package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/musicsupplies/promo-service/internal/models"
	"github.com/musicsupplies/promo-service/internal/service"
)

// PromoCache is a redis read-through in front of the promo store. Only
// the validator's lookup goes through it; the redemption transaction
// always re-reads the locked row, so a stale cache entry can at worst
// produce a friendlier rejection one TTL early or late.
type PromoCache struct {
	store service.PromoReader
	rdb   *redis.Client
	ttl   time.Duration
}

func NewPromoCache(store service.PromoReader, rdb *redis.Client, ttl time.Duration) *PromoCache {
	return &PromoCache{store: store, rdb: rdb, ttl: ttl}
}

func (c *PromoCache) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	key := cacheKey(code)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var promo models.PromoCode
		if err := json.Unmarshal(data, &promo); err == nil {
			return &promo, nil
		}
		// corrupt entry, drop it and fall through
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		// redis being down degrades to store reads
		log.Warn().Err(err).Str("code", code).Msg("promo cache read failed")
	}

	promo, err := c.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if promo != nil {
		if data, err := json.Marshal(promo); err == nil {
			if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				log.Warn().Err(err).Str("code", code).Msg("promo cache write failed")
			}
		}
	}
	return promo, nil
}

// Invalidate drops the cached entry after an admin mutation.
func (c *PromoCache) Invalidate(ctx context.Context, code string) {
	if err := c.rdb.Del(ctx, cacheKey(code)).Err(); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("promo cache invalidation failed")
	}
}

func cacheKey(code string) string {
	return "promo:code:" + strings.ToUpper(code)
}
