package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	pkgredis "github.com/Umairakbar1/business-backend-sub000/pkg/redis"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	releaseLockScriptName = "boost_release_lock"
	categoryLockPrefix    = "boost:lock:category:"
)

// RedisCategoryLocker holds a SET NX PX lease per category so reconciler and
// API processes on different hosts serialize on the same key. The lease is
// released with a token check so an expired holder cannot free a successor's lock.
type RedisCategoryLocker struct {
	client       *pkgredis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisCategoryLocker creates a new RedisCategoryLocker
func NewRedisCategoryLocker(client *pkgredis.Client, ttl time.Duration) *RedisCategoryLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisCategoryLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: 25 * time.Millisecond,
	}
}

func (l *RedisCategoryLocker) Lock(ctx context.Context, category string) (func(), error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.category_lock.acquire")
	defer span.End()

	span.SetAttributes(attribute.String("category", category))

	key := categoryLockPrefix + category
	token := uuid.NewString()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to acquire category lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "lock wait canceled")
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	span.SetAttributes(attribute.Int("attempts", attempts))
	span.SetStatus(codes.Ok, "")

	return func() {
		// release with a fresh context so a canceled request still frees the lease
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.EvalWithFallback(releaseCtx, releaseLockScriptName, releaseLockScript, []string{key}, token).Err(); err != nil {
			logger.Get().Warn("failed to release category lock", "category", category, "error", err)
		}
	}, nil
}
