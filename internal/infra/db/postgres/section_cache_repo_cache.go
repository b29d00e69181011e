package postgres

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
	"document-intelligence/internal/infra/metrics"
	red "document-intelligence/internal/infra/redis"
)

var _ repository.SectionCacheRepository = (*sectionCacheDecorator)(nil)

// sectionCacheDecorator keeps hot sections in Redis in front of section_cache.
// Redis failures degrade to the table; they never fail the call.
type sectionCacheDecorator struct {
	inner  repository.SectionCacheRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewSectionCacheDecorator(inner repository.SectionCacheRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SectionCacheRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &sectionCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (d *sectionCacheDecorator) Get(ctx context.Context, key model.SectionCacheKey) ([]byte, error) {
	val, err := d.cache.Get(ctx, key.String())
	if err == nil {
		metrics.IncCacheRequest("section_redis", "hit")
		return []byte(val), nil
	}
	if !red.IsMiss(err) {
		d.logger.Warn().Err(err).Str("key", key.String()).Msg("section cache redis get failed")
	}
	metrics.IncCacheRequest("section_redis", "miss")

	b, err := d.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Set(ctx, key.String(), b, d.ttl); err != nil {
		d.logger.Warn().Err(err).Msg("section cache redis backfill failed")
	}
	return b, nil
}

func (d *sectionCacheDecorator) Put(ctx context.Context, key model.SectionCacheKey, sectionJSON []byte) error {
	if err := d.inner.Put(ctx, key, sectionJSON); err != nil {
		return err
	}
	if err := d.cache.Set(ctx, key.String(), sectionJSON, d.ttl); err != nil {
		d.logger.Warn().Err(err).Msg("section cache redis set failed")
	}
	return nil
}
