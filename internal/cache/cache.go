package cache

import (
	"context"
	"time"
)

// ReportCache stores rendered report responses. Keys are namespaced by a
// per-shop generation so that bumping the generation retires every cached
// report of that shop at once.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Generation(ctx context.Context, shopID string) (int64, error)
	Invalidate(ctx context.Context, shopID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
