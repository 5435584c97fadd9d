package service

import (
	"context"

	"barberbill/backend/internal/domain"
)

func (s *Service) CustomerInsights(ctx context.Context, q domain.CustomerInsightsQuery) (domain.CustomerInsights, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.CustomerInsights{}, err
	}
	if err := validateWindow(q.Start.IsZero(), q.End.IsZero(), q.End.Before(q.Start)); err != nil {
		return domain.CustomerInsights{}, err
	}
	return s.reports.CustomerInsights(ctx, shop.ID, q)
}

func (s *Service) ServicePerformance(ctx context.Context, q domain.ServicePerformanceQuery) (domain.ServicePerformance, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.ServicePerformance{}, err
	}
	if err := validateWindow(q.Start.IsZero(), q.End.IsZero(), q.End.Before(q.Start)); err != nil {
		return domain.ServicePerformance{}, err
	}
	return s.reports.ServicePerformance(ctx, shop.ID, q)
}

func validateWindow(startMissing bool, endMissing bool, reversed bool) error {
	switch {
	case startMissing && endMissing:
		return validationError("start and end are required")
	case startMissing:
		return validationError("start is required")
	case endMissing:
		return validationError("end is required")
	case reversed:
		return validationError("end must not be before start")
	}
	return nil
}
