package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"course-payments/internal/domain/model"
	"course-payments/internal/domain/ports/repository"
	"course-payments/internal/infra/metrics"
	red "course-payments/internal/infra/redis"
)

var _ repository.CohortRepository = (*cohortRepoCacheDecorator)(nil)

// cohortRepoCacheDecorator caches cohort and course lookups. Cohorts are managed outside
// this service, so entries simply age out after ttl. Misses are never cached.
type cohortRepoCacheDecorator struct {
	inner  repository.CohortRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCohortRepoCacheDecorator(inner repository.CohortRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.CohortRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "cohort_cache").Logger()
	return &cohortRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: &l}
}

func (d *cohortRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Cohort, error) {
	return cached(ctx, d, "cohort:id:"+id, func() (*model.Cohort, error) {
		return d.inner.FindByID(ctx, tx, id)
	})
}

func (d *cohortRepoCacheDecorator) FindByCourseAndName(ctx context.Context, tx repository.Tx, courseID, name string) (*model.Cohort, error) {
	key := fmt.Sprintf("cohort:name:%s:%s", courseID, strings.ToLower(strings.TrimSpace(name)))
	return cached(ctx, d, key, func() (*model.Cohort, error) {
		return d.inner.FindByCourseAndName(ctx, tx, courseID, name)
	})
}

func (d *cohortRepoCacheDecorator) NextAfter(ctx context.Context, tx repository.Tx, courseID, cohortID string) (*model.Cohort, error) {
	return cached(ctx, d, fmt.Sprintf("cohort:next:%s:%s", courseID, cohortID), func() (*model.Cohort, error) {
		return d.inner.NextAfter(ctx, tx, courseID, cohortID)
	})
}

func (d *cohortRepoCacheDecorator) FindCourse(ctx context.Context, tx repository.Tx, courseID string) (*model.Course, error) {
	return cached(ctx, d, "course:id:"+courseID, func() (*model.Course, error) {
		return d.inner.FindCourse(ctx, tx, courseID)
	})
}

func cached[T any](ctx context.Context, d *cohortRepoCacheDecorator, key string, load func() (*T, error)) (*T, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var out T
		if json.Unmarshal([]byte(val), &out) == nil {
			metrics.IncCacheRequest("cohort", "hit")
			return &out, nil
		}
	} else if err != red.Nil {
		metrics.IncCacheRequest("cohort", "error")
		d.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("cohort", "miss")
	v, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(v); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return v, nil
}
