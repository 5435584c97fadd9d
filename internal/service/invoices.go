package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/store"
	"barberbill/backend/internal/xid"
)

const (
	defaultItemQty   = 1
	invoiceListLimit = 200
)

type invoiceLine struct {
	ServiceID string `json:"service_id" validate:"required"`
	Qty       int    `json:"qty" validate:"min=1,max=100"`
}

type invoiceDraft struct {
	Items            []invoiceLine `json:"items" validate:"required,min=1,dive"`
	DiscountPaise    int64         `json:"discount_paise" validate:"min=0"`
	PaymentReference *string       `json:"payment_reference" validate:"omitempty,max=120"`
}

// ResolveServices looks up the shop's services for ids. Inactive services
// still resolve. Every id that is unknown or belongs to another shop is
// reported in a single error.
func (s *Service) ResolveServices(ctx context.Context, shopID string, ids []string) (map[string]domain.Service, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	lookup := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
		if xid.Valid(id) {
			lookup = append(lookup, id)
		}
	}

	found, err := s.repo.GetServicesByIDs(ctx, shopID, lookup)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for _, id := range unique {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, referenceError("Invalid service(s): %s", strings.Join(missing, ", "))
	}
	return found, nil
}

// CreateInvoice prices the requested lines from the current catalog and
// stores header, items and the single payment in one write.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.InvoiceDetail, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return domain.InvoiceDetail{}, validationError("payment_method must be one of CASH, UPI, CARD, OTHER")
	}

	draft := invoiceDraft{
		Items:            make([]invoiceLine, 0, len(req.Items)),
		DiscountPaise:    req.DiscountPaise,
		PaymentReference: paymentReference(method, req),
	}
	for _, item := range req.Items {
		line := invoiceLine{ServiceID: strings.TrimSpace(item.ServiceID), Qty: defaultItemQty}
		if item.Qty != nil {
			line.Qty = *item.Qty
		}
		draft.Items = append(draft.Items, line)
	}
	if err := s.validateStruct(draft); err != nil {
		return domain.InvoiceDetail{}, err
	}

	var customer *domain.Customer
	if customerID := trimmedOrNil(req.CustomerID); customerID != nil {
		customer, err = s.findCustomer(ctx, shop.ID, *customerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.InvoiceDetail{}, referenceError("Customer not found")
			}
			return domain.InvoiceDetail{}, err
		}
	}

	serviceIDs := make([]string, 0, len(draft.Items))
	for _, line := range draft.Items {
		serviceIDs = append(serviceIDs, line.ServiceID)
	}
	services, err := s.ResolveServices(ctx, shop.ID, serviceIDs)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	now := s.now().UTC()
	issuedAt := now
	if req.IssuedAt != nil && !req.IssuedAt.IsZero() {
		issuedAt = req.IssuedAt.UTC()
	}

	invoice := domain.Invoice{
		ID:        xid.New(),
		ShopID:    shop.ID,
		IssuedAt:  issuedAt,
		Status:    domain.InvoiceStatusPaid,
		CreatedAt: now,
		Items:     make([]domain.InvoiceItem, 0, len(draft.Items)),
	}
	if customer != nil {
		customerID := customer.ID
		invoice.CustomerID = &customerID
	}

	subtotal := int64(0)
	for idx, line := range draft.Items {
		svc := services[line.ServiceID]
		serviceID := svc.ID
		if svc.PricePaise > math.MaxInt64/int64(line.Qty) {
			return domain.InvoiceDetail{}, validationError("items[%d] total is too large", idx)
		}
		lineTotal := svc.PricePaise * int64(line.Qty)
		if subtotal > math.MaxInt64-lineTotal {
			return domain.InvoiceDetail{}, validationError("invoice subtotal is too large")
		}
		invoice.Items = append(invoice.Items, domain.InvoiceItem{
			ID:             xid.New(),
			InvoiceID:      invoice.ID,
			ServiceID:      &serviceID,
			Position:       idx,
			Description:    svc.Name,
			Qty:            line.Qty,
			UnitPricePaise: svc.PricePaise,
			TotalPaise:     lineTotal,
			CreatedAt:      now,
		})
		subtotal += lineTotal
	}

	discount := min(draft.DiscountPaise, subtotal)
	invoice.SubtotalPaise = subtotal
	invoice.DiscountPaise = discount
	invoice.TotalPaise = max(0, subtotal-discount)
	invoice.Payments = []domain.Payment{{
		ID:          xid.New(),
		InvoiceID:   invoice.ID,
		Method:      string(method),
		AmountPaise: invoice.TotalPaise,
		Reference:   draft.PaymentReference,
		CreatedAt:   now,
	}}

	saved, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.InvoiceDetail{}, fmt.Errorf("create invoice: %w", err)
	}
	s.reports.Invalidate(ctx, shop.ID)

	s.logger.Info("invoice created",
		zap.String("shop_id", shop.ID),
		zap.String("invoice_id", saved.ID),
		zap.Int("items", len(saved.Items)),
		zap.Int64("total_paise", saved.TotalPaise),
		zap.String("method", string(method)),
	)
	return toInvoiceDetail(saved, customer), nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.InvoiceDetail, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	id = strings.TrimSpace(id)
	if !xid.Valid(id) {
		return domain.InvoiceDetail{}, notFoundError("Invoice not found")
	}
	invoice, err := s.repo.GetInvoice(ctx, shop.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InvoiceDetail{}, notFoundError("Invoice not found")
		}
		return domain.InvoiceDetail{}, err
	}

	var customer *domain.Customer
	if invoice.CustomerID != nil {
		customer, err = s.repo.GetCustomer(ctx, shop.ID, *invoice.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.InvoiceDetail{}, err
		}
	}
	return toInvoiceDetail(invoice, customer), nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.InvoiceSummary, error) {
	shop, err := requireShop(ctx)
	if err != nil {
		return nil, err
	}

	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	if filter.CustomerID != "" && !xid.Valid(filter.CustomerID) {
		return []domain.InvoiceSummary{}, nil
	}
	if filter.Limit < 1 || filter.Limit > invoiceListLimit {
		filter.Limit = invoiceListLimit
	}

	summaries, err := s.repo.ListInvoices(ctx, shop.ID, filter)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].PaymentMethod = domain.DisplayPaymentMethod(summaries[i].PaymentMethod)
	}
	return summaries, nil
}

// paymentReference keeps a non-blank reference for methods that carry one.
func paymentReference(method domain.PaymentMethod, req domain.InvoiceCreateRequest) *string {
	if !method.AcceptsReference() {
		return nil
	}
	if ref := trimmedOrNil(req.UPIRef); ref != nil {
		return ref
	}
	return trimmedOrNil(req.PaymentReference)
}

func toInvoiceDetail(invoice *domain.Invoice, customer *domain.Customer) domain.InvoiceDetail {
	detail := domain.InvoiceDetail{
		ID:            invoice.ID,
		CustomerID:    invoice.CustomerID,
		IssuedAt:      invoice.IssuedAt,
		Status:        invoice.Status,
		SubtotalPaise: invoice.SubtotalPaise,
		DiscountPaise: invoice.DiscountPaise,
		TotalPaise:    invoice.TotalPaise,
		Items:         invoice.Items,
		Payments:      invoice.Payments,
	}
	if detail.Items == nil {
		detail.Items = []domain.InvoiceItem{}
	}
	if detail.Payments == nil {
		detail.Payments = []domain.Payment{}
	}
	if customer != nil {
		name := customer.Name
		detail.CustomerName = &name
		detail.CustomerPhone = customer.Phone
	}
	return detail
}
