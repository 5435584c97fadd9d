package report

import (
	"cmp"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"barberbill/backend/internal/cache"
	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/store"
)

const (
	DefaultDormantDays = 30
	MinDormantDays     = 1
	MaxDormantDays     = 3650

	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 100
)

type Engine struct {
	source   store.ReportSource
	cache    cache.ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(source store.ReportSource, cacheStore cache.ReportCache, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for the dormancy cutoff.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// CustomerInsights ranks repeat and top customers inside the window and
// selects dormant customers from all-time history. The two aggregates are
// read concurrently and are not a single snapshot.
func (e *Engine) CustomerInsights(ctx context.Context, shopID string, q domain.CustomerInsightsQuery) (domain.CustomerInsights, error) {
	q.Start = q.Start.UTC()
	q.End = q.End.UTC()
	q.DormantDays = ClampDormantDays(q.DormantDays)
	q.Limit = ClampLimit(q.Limit)

	key := e.cacheKey(ctx, shopID, "customers",
		q.Start.Format(time.RFC3339Nano),
		q.End.Format(time.RFC3339Nano),
		fmt.Sprintf("d:%d", q.DormantDays),
		fmt.Sprintf("n:%t", q.IncludeNever),
		fmt.Sprintf("l:%d", q.Limit),
	)
	var cached domain.CustomerInsights
	if e.lookup(ctx, key, &cached) {
		return cached, nil
	}

	var window []domain.CustomerInsightRow
	var activity []domain.DormantCustomerRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.source.CustomerWindowAggregates(gctx, shopID, q.Start, q.End)
		if err != nil {
			return fmt.Errorf("customer window aggregates: %w", err)
		}
		window = rows
		return nil
	})
	g.Go(func() error {
		rows, err := e.source.CustomerActivity(gctx, shopID)
		if err != nil {
			return fmt.Errorf("customer activity: %w", err)
		}
		activity = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.CustomerInsights{}, err
	}

	cutoff := e.now().UTC().Add(-time.Duration(q.DormantDays) * 24 * time.Hour)
	resp := domain.CustomerInsights{
		Start:            q.Start,
		End:              q.End,
		DormantDays:      q.DormantDays,
		IncludeNever:     q.IncludeNever,
		Limit:            q.Limit,
		RepeatCustomers:  RankRepeatCustomers(window, q.Limit),
		TopCustomers:     RankTopCustomers(window, q.Limit),
		DormantCustomers: SelectDormant(activity, cutoff, q.IncludeNever, q.Limit),
	}

	e.save(ctx, key, resp)
	return resp, nil
}

func (e *Engine) ServicePerformance(ctx context.Context, shopID string, q domain.ServicePerformanceQuery) (domain.ServicePerformance, error) {
	q.Start = q.Start.UTC()
	q.End = q.End.UTC()
	q.Limit = ClampLimit(q.Limit)

	key := e.cacheKey(ctx, shopID, "services",
		q.Start.Format(time.RFC3339Nano),
		q.End.Format(time.RFC3339Nano),
		fmt.Sprintf("l:%d", q.Limit),
	)
	var cached domain.ServicePerformance
	if e.lookup(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := e.source.ServiceAggregates(ctx, shopID, q.Start, q.End)
	if err != nil {
		return domain.ServicePerformance{}, fmt.Errorf("service aggregates: %w", err)
	}

	resp := domain.ServicePerformance{
		Start:         q.Start,
		End:           q.End,
		Limit:         q.Limit,
		TopByRevenue:  RankServicesByRevenue(rows, q.Limit),
		TopByQuantity: RankServicesByQuantity(rows, q.Limit),
	}

	e.save(ctx, key, resp)
	return resp, nil
}

// Invalidate retires every cached report of the shop.
func (e *Engine) Invalidate(ctx context.Context, shopID string) {
	if err := e.cache.Invalidate(ctx, shopID); err != nil {
		e.logger.Warn("report cache invalidation failed", zap.String("shop_id", shopID), zap.Error(err))
	}
}

func RankRepeatCustomers(rows []domain.CustomerInsightRow, limit int) []domain.CustomerInsightRow {
	repeat := make([]domain.CustomerInsightRow, 0, len(rows))
	for _, row := range rows {
		if row.BillCount >= 2 {
			repeat = append(repeat, row)
		}
	}
	slices.SortFunc(repeat, func(a, b domain.CustomerInsightRow) int {
		return cmp.Or(
			cmp.Compare(b.BillCount, a.BillCount),
			cmp.Compare(b.NetPaise, a.NetPaise),
			cmp.Compare(a.CustomerName, b.CustomerName),
			cmp.Compare(a.CustomerID, b.CustomerID),
		)
	})
	return truncate(repeat, limit)
}

func RankTopCustomers(rows []domain.CustomerInsightRow, limit int) []domain.CustomerInsightRow {
	top := make([]domain.CustomerInsightRow, 0, len(rows))
	for _, row := range rows {
		if row.BillCount >= 1 {
			top = append(top, row)
		}
	}
	slices.SortFunc(top, func(a, b domain.CustomerInsightRow) int {
		return cmp.Or(
			cmp.Compare(b.NetPaise, a.NetPaise),
			cmp.Compare(b.BillCount, a.BillCount),
			cmp.Compare(a.CustomerName, b.CustomerName),
			cmp.Compare(a.CustomerID, b.CustomerID),
		)
	})
	return truncate(top, limit)
}

// SelectDormant keeps customers whose latest invoice is older than cutoff
// and, when includeNever is set, customers never billed. Never-billed
// customers come first, then the longest-idle.
func SelectDormant(rows []domain.DormantCustomerRow, cutoff time.Time, includeNever bool, limit int) []domain.DormantCustomerRow {
	dormant := make([]domain.DormantCustomerRow, 0, len(rows))
	for _, row := range rows {
		if row.LastInvoiceAt == nil {
			if includeNever {
				dormant = append(dormant, row)
			}
			continue
		}
		if row.LastInvoiceAt.Before(cutoff) {
			dormant = append(dormant, row)
		}
	}
	slices.SortFunc(dormant, func(a, b domain.DormantCustomerRow) int {
		aNever, bNever := a.LastInvoiceAt == nil, b.LastInvoiceAt == nil
		if aNever != bNever {
			if aNever {
				return -1
			}
			return 1
		}
		if !aNever {
			if c := a.LastInvoiceAt.Compare(*b.LastInvoiceAt); c != 0 {
				return c
			}
		}
		return cmp.Or(cmp.Compare(a.CustomerName, b.CustomerName), cmp.Compare(a.CustomerID, b.CustomerID))
	})
	return truncate(dormant, limit)
}

func RankServicesByRevenue(rows []domain.ServicePerformanceRow, limit int) []domain.ServicePerformanceRow {
	ranked := slices.Clone(rows)
	slices.SortFunc(ranked, func(a, b domain.ServicePerformanceRow) int {
		return cmp.Or(
			cmp.Compare(b.RevenuePaise, a.RevenuePaise),
			cmp.Compare(b.Qty, a.Qty),
			cmp.Compare(a.ServiceName, b.ServiceName),
			cmp.Compare(a.ServiceID, b.ServiceID),
		)
	})
	return truncate(ranked, limit)
}

func RankServicesByQuantity(rows []domain.ServicePerformanceRow, limit int) []domain.ServicePerformanceRow {
	ranked := slices.Clone(rows)
	slices.SortFunc(ranked, func(a, b domain.ServicePerformanceRow) int {
		return cmp.Or(
			cmp.Compare(b.Qty, a.Qty),
			cmp.Compare(b.RevenuePaise, a.RevenuePaise),
			cmp.Compare(a.ServiceName, b.ServiceName),
			cmp.Compare(a.ServiceID, b.ServiceID),
		)
	})
	return truncate(ranked, limit)
}

func ClampDormantDays(days int) int {
	return clamp(days, MinDormantDays, MaxDormantDays)
}

func ClampLimit(limit int) int {
	return clamp(limit, MinLimit, MaxLimit)
}

func (e *Engine) lookup(ctx context.Context, key string, dest any) bool {
	if key == "" {
		return false
	}
	ok, err := e.cache.Get(ctx, key, dest)
	if err != nil {
		e.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (e *Engine) save(ctx context.Context, key string, value any) {
	if key == "" {
		return
	}
	if err := e.cache.Set(ctx, key, value, e.cacheTTL); err != nil {
		e.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// cacheKey returns "" when the shop generation is unavailable; the report
// is then computed without caching.
func (e *Engine) cacheKey(ctx context.Context, shopID string, kind string, parts ...string) string {
	gen, err := e.cache.Generation(ctx, shopID)
	if err != nil {
		e.logger.Warn("report cache generation unavailable", zap.String("shop_id", shopID), zap.Error(err))
		return ""
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("barberbill:reports:%s:%d:%s:%s", shopID, gen, kind, hex.EncodeToString(hash[:]))
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func clamp(val int, minVal int, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
