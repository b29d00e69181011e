//go:build !integration

package postgres

import (
	"context"
	"time"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
	red "document-intelligence/internal/infra/redis"
)

// mockInnerSectionCache mocks the table-backed cache the decorator wraps.
type mockInnerSectionCache struct {
	GetFunc func(ctx context.Context, key model.SectionCacheKey) ([]byte, error)
	PutFunc func(ctx context.Context, key model.SectionCacheKey, b []byte) error
}

var _ repository.SectionCacheRepository = (*mockInnerSectionCache)(nil)

func (m *mockInnerSectionCache) Get(ctx context.Context, key model.SectionCacheKey) ([]byte, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockInnerSectionCache) Put(ctx context.Context, key model.SectionCacheKey, b []byte) error {
	return m.PutFunc(ctx, key, b)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Close() error                   { return nil }
