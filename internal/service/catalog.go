package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/store"
	"barberbill/backend/internal/xid"
)

const customerListLimit = 200

func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, shop.ID)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.Service{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return domain.Service{}, err
	}
	if err := s.repo.EnsureShop(ctx, shop); err != nil {
		return domain.Service{}, err
	}

	now := s.now().UTC()
	svc := domain.Service{
		ID:         xid.New(),
		ShopID:     shop.ID,
		Name:       req.Name,
		PricePaise: req.PricePaise,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}

	saved, err := s.repo.CreateService(ctx, svc)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Service{}, conflictError("Service name already exists")
		}
		return domain.Service{}, err
	}

	s.reports.Invalidate(ctx, shop.ID)

	s.logger.Info("service created", zap.String("shop_id", shop.ID), zap.String("service_id", saved.ID))
	return *saved, nil
}

// UpdateService changes the catalog only; invoice items keep the name and
// price they were billed with.
func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.Service{}, err
	}

	id = strings.TrimSpace(id)
	if !xid.Valid(id) {
		return domain.Service{}, notFoundError("Service not found")
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Service{}, err
	}

	existing, err := s.repo.GetService(ctx, shop.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Service{}, notFoundError("Service not found")
		}
		return domain.Service{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.PricePaise != nil {
		updated.PricePaise = *req.PricePaise
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateService(ctx, updated)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.Service{}, notFoundError("Service not found")
		case errors.Is(err, store.ErrConflict):
			return domain.Service{}, conflictError("Service name already exists")
		}
		return domain.Service{}, err
	}
	s.reports.Invalidate(ctx, shop.ID)

	if existing.PricePaise != saved.PricePaise {
		s.logger.Info("service price changed",
			zap.String("shop_id", shop.ID),
			zap.String("service_id", saved.ID),
			zap.Int64("old_price_paise", existing.PricePaise),
			zap.Int64("new_price_paise", saved.PricePaise),
		)
	}
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, shop.ID, customerListLimit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = trimmedOrNil(req.Phone)
	req.Email = trimmedOrNil(req.Email)
	req.DOB = trimmedOrNil(req.DOB)
	req.Gender = trimmedOrNil(req.Gender)
	req.Anniversary = trimmedOrNil(req.Anniversary)
	req.ReferralSource = trimmedOrNil(req.ReferralSource)
	req.Notes = trimmedOrNil(req.Notes)
	if err := s.validateStruct(req); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:               xid.New(),
		ShopID:           shop.ID,
		Name:             req.Name,
		Phone:            req.Phone,
		Email:            req.Email,
		DOB:              parseDate(req.DOB),
		Gender:           req.Gender,
		Anniversary:      parseDate(req.Anniversary),
		ReferralSource:   req.ReferralSource,
		MarketingConsent: true,
		WhatsAppOptIn:    true,
		Notes:            req.Notes,
		CreatedAt:        s.now().UTC(),
	}
	if req.MarketingConsent != nil {
		customer.MarketingConsent = *req.MarketingConsent
	}
	if req.WhatsAppOptIn != nil {
		customer.WhatsAppOptIn = *req.WhatsAppOptIn
	}

	if err := s.repo.EnsureShop(ctx, shop); err != nil {
		return domain.Customer{}, err
	}
	saved, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Customer{}, conflictError("Customer phone already exists")
		}
		return domain.Customer{}, err
	}
	s.reports.Invalidate(ctx, shop.ID)
	return *saved, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.findCustomer(ctx, shop.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Customer{}, notFoundError("Customer not found")
		}
		return domain.Customer{}, err
	}
	return *customer, nil
}

// findCustomer treats malformed ids as absent.
func (s *Service) findCustomer(ctx context.Context, shopID string, id string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetCustomer(ctx, shopID, id)
}

// parseDate expects a value already checked by the datetime validator.
func parseDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, err := time.Parse(time.DateOnly, *raw)
	if err != nil {
		return nil
	}
	return &t
}
