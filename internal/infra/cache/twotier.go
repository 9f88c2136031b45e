package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// SharedCache — контракт общего яруса (Redis).
type SharedCache interface {
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TwoTier реализует domain.RecommendationCache: локальный ярус, затем общий,
// затем вычисление. Вычисление на один ключ выполняется не более одного раза
// одновременно в пределах процесса; это не кластерная блокировка.
type TwoTier struct {
	local  *Local
	shared SharedCache
	group  singleflight.Group
}

var _ domain.RecommendationCache = (*TwoTier)(nil)

// NewTwoTier создаёт двухъярусный кэш. shared может быть nil:
// тогда остаётся только локальный ярус.
func NewTwoTier(local *Local, shared SharedCache) *TwoTier {
	return &TwoTier{local: local, shared: shared}
}

// GetOrCompute возвращает значение по ключу, при промахе обоих ярусов
// вычисляя его и заполняя оба яруса.
func (t *TwoTier) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := t.local.Get(key, ttl); ok {
		metrics.ObserveCacheLookup("local", true)
		return value, nil
	}
	metrics.ObserveCacheLookup("local", false)

	value, err, _ := t.group.Do(key, func() (any, error) {
		if value, ok := t.local.Get(key, ttl); ok {
			return value, nil
		}
		if t.shared != nil {
			data, err := t.shared.Get(ctx, key, ttl)
			if err == nil {
				metrics.ObserveCacheLookup("shared", true)
				t.local.Set(key, data, ttl)
				return data, nil
			}
			if !errors.Is(err, domain.ErrCacheMiss) {
				return nil, err
			}
			metrics.ObserveCacheLookup("shared", false)
		}
		data, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if t.shared != nil {
			_ = t.shared.Set(ctx, key, data, ttl)
		}
		t.local.Set(key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}
