package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/store"
	"barberbill/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	shopsByID     map[string]domain.Shop
	servicesByID  map[string]domain.Service
	customersByID map[string]domain.Customer
	invoicesByID  map[string]*domain.Invoice
}

func New() *Store {
	return &Store{
		shopsByID:     make(map[string]domain.Shop),
		servicesByID:  make(map[string]domain.Service),
		customersByID: make(map[string]domain.Customer),
		invoicesByID:  make(map[string]*domain.Invoice),
	}
}

// NewSeeded returns a store holding a starter price list for shopID, used
// when the server runs without a database.
func NewSeeded(shopID string) *Store {
	s := New()
	if shopID == "" {
		return s
	}

	s.shopsByID[shopID] = domain.Shop{ID: shopID}
	now := time.Now().UTC()
	for _, seed := range []struct {
		name  string
		price int64
	}{
		{name: "Haircut", price: 15000},
		{name: "Beard Trim", price: 8000},
		{name: "Shave", price: 10000},
		{name: "Hair Colour", price: 60000},
		{name: "Head Massage", price: 20000},
	} {
		id := xid.New()
		s.servicesByID[id] = domain.Service{
			ID:         id,
			ShopID:     shopID,
			Name:       seed.name,
			PricePaise: seed.price,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return s
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) EnsureShop(_ context.Context, shop domain.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shopsByID[shop.ID]; !ok {
		s.shopsByID[shop.ID] = shop
	}
	return nil
}

func (s *Store) ListServices(_ context.Context, shopID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, 16)
	for _, svc := range s.servicesByID {
		if svc.ShopID == shopID {
			services = append(services, svc)
		}
	}
	slices.SortFunc(services, func(a, b domain.Service) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return services, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serviceNameTaken(svc.ShopID, svc.Name, "") {
		return nil, store.ErrConflict
	}
	s.servicesByID[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) GetService(_ context.Context, shopID string, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.servicesByID[id]
	if !ok || svc.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (s *Store) UpdateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.servicesByID[svc.ID]
	if !ok || existing.ShopID != svc.ShopID {
		return nil, store.ErrNotFound
	}
	if s.serviceNameTaken(svc.ShopID, svc.Name, svc.ID) {
		return nil, store.ErrConflict
	}
	svc.CreatedAt = existing.CreatedAt
	s.servicesByID[svc.ID] = svc
	updated := svc
	return &updated, nil
}

func (s *Store) GetServicesByIDs(_ context.Context, shopID string, ids []string) (map[string]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Service, len(ids))
	for _, id := range ids {
		svc, ok := s.servicesByID[id]
		if ok && svc.ShopID == shopID {
			result[id] = svc
		}
	}
	return result, nil
}

func (s *Store) ListCustomers(_ context.Context, shopID string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, 32)
	for _, c := range s.customersByID {
		if c.ShopID == shopID {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Phone != nil {
		for _, existing := range s.customersByID {
			if existing.ShopID == customer.ShopID && existing.Phone != nil && *existing.Phone == *customer.Phone {
				return nil, store.ErrConflict
			}
		}
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, shopID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok || customer.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

// CreateInvoice checks every row the way the relational constraints would
// before touching the map, so a rejected invoice leaves no trace.
func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" || invoice.ShopID == "" || len(invoice.Items) == 0 || len(invoice.Payments) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrConflict
	}
	if invoice.CustomerID != nil {
		customer, ok := s.customersByID[*invoice.CustomerID]
		if !ok || customer.ShopID != invoice.ShopID {
			return nil, store.ErrInvalidInvoice
		}
	}
	if invoice.SubtotalPaise < 0 || invoice.DiscountPaise < 0 || invoice.TotalPaise < 0 {
		return nil, store.ErrInvalidInvoice
	}
	for _, item := range invoice.Items {
		if item.Qty < 1 || item.UnitPricePaise < 0 || item.TotalPaise != int64(item.Qty)*item.UnitPricePaise {
			return nil, store.ErrInvalidInvoice
		}
		if item.ServiceID != nil {
			if _, ok := s.servicesByID[*item.ServiceID]; !ok {
				return nil, store.ErrInvalidInvoice
			}
		}
	}
	for _, payment := range invoice.Payments {
		if payment.AmountPaise < 0 || strings.TrimSpace(payment.Method) == "" {
			return nil, store.ErrInvalidInvoice
		}
	}

	stored := cloneInvoice(&invoice)
	s.invoicesByID[invoice.ID] = stored
	return cloneInvoice(stored), nil
}

func (s *Store) GetInvoice(_ context.Context, shopID string, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByID[id]
	if !ok || invoice.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(invoice), nil
}

func (s *Store) ListInvoices(_ context.Context, shopID string, filter domain.InvoiceFilter) ([]domain.InvoiceSummary, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Invoice, 0, 64)
	for _, invoice := range s.invoicesByID {
		if invoice.ShopID != shopID {
			continue
		}
		if filter.CustomerID != "" && (invoice.CustomerID == nil || *invoice.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.Start != nil && invoice.IssuedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && !invoice.IssuedAt.Before(*filter.End) {
			continue
		}
		matched = append(matched, invoice)
	}
	slices.SortFunc(matched, func(a, b *domain.Invoice) int {
		return cmp.Or(b.IssuedAt.Compare(a.IssuedAt), cmp.Compare(b.ID, a.ID))
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	summaries := make([]domain.InvoiceSummary, 0, len(matched))
	for _, invoice := range matched {
		summary := domain.InvoiceSummary{
			ID:            invoice.ID,
			IssuedAt:      invoice.IssuedAt,
			SubtotalPaise: invoice.SubtotalPaise,
			DiscountPaise: invoice.DiscountPaise,
			TotalPaise:    invoice.TotalPaise,
		}
		if invoice.CustomerID != nil {
			customerID := *invoice.CustomerID
			summary.CustomerID = &customerID
			if customer, ok := s.customersByID[customerID]; ok && customer.ShopID == shopID {
				name := customer.Name
				summary.CustomerName = &name
			}
		}
		if first := firstPayment(invoice.Payments); first != nil {
			summary.PaymentMethod = first.Method
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Store) CustomerWindowAggregates(_ context.Context, shopID string, start time.Time, end time.Time) ([]domain.CustomerInsightRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCustomer := make(map[string]*domain.CustomerInsightRow)
	for _, invoice := range s.invoicesByID {
		if invoice.ShopID != shopID || invoice.CustomerID == nil {
			continue
		}
		if invoice.IssuedAt.Before(start) || !invoice.IssuedAt.Before(end) {
			continue
		}
		customer, ok := s.customersByID[*invoice.CustomerID]
		if !ok || customer.ShopID != shopID {
			continue
		}

		row, ok := byCustomer[customer.ID]
		if !ok {
			row = &domain.CustomerInsightRow{CustomerID: customer.ID, CustomerName: customer.Name}
			byCustomer[customer.ID] = row
		}
		row.BillCount++
		row.GrossPaise += invoice.SubtotalPaise
		row.DiscountPaise += invoice.DiscountPaise
		row.NetPaise += invoice.TotalPaise
		if row.LastInvoiceAt == nil || invoice.IssuedAt.After(*row.LastInvoiceAt) {
			issuedAt := invoice.IssuedAt
			row.LastInvoiceAt = &issuedAt
		}
	}

	rows := make([]domain.CustomerInsightRow, 0, len(byCustomer))
	for _, row := range byCustomer {
		rows = append(rows, *row)
	}
	return rows, nil
}

func (s *Store) CustomerActivity(_ context.Context, shopID string) ([]domain.DormantCustomerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCustomer := make(map[string]*domain.DormantCustomerRow)
	for _, customer := range s.customersByID {
		if customer.ShopID == shopID {
			byCustomer[customer.ID] = &domain.DormantCustomerRow{CustomerID: customer.ID, CustomerName: customer.Name}
		}
	}
	for _, invoice := range s.invoicesByID {
		if invoice.ShopID != shopID || invoice.CustomerID == nil {
			continue
		}
		row, ok := byCustomer[*invoice.CustomerID]
		if !ok {
			continue
		}
		row.BillCountAllTime++
		if row.LastInvoiceAt == nil || invoice.IssuedAt.After(*row.LastInvoiceAt) {
			issuedAt := invoice.IssuedAt
			row.LastInvoiceAt = &issuedAt
		}
	}

	rows := make([]domain.DormantCustomerRow, 0, len(byCustomer))
	for _, row := range byCustomer {
		rows = append(rows, *row)
	}
	return rows, nil
}

func (s *Store) ServiceAggregates(_ context.Context, shopID string, start time.Time, end time.Time) ([]domain.ServicePerformanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type accumulator struct {
		row      domain.ServicePerformanceRow
		invoices map[string]struct{}
	}
	byService := make(map[string]*accumulator)
	for _, invoice := range s.invoicesByID {
		if invoice.ShopID != shopID {
			continue
		}
		if invoice.IssuedAt.Before(start) || !invoice.IssuedAt.Before(end) {
			continue
		}
		for _, item := range invoice.Items {
			if item.ServiceID == nil {
				continue
			}
			svc, ok := s.servicesByID[*item.ServiceID]
			if !ok || svc.ShopID != shopID {
				continue
			}
			acc, ok := byService[svc.ID]
			if !ok {
				acc = &accumulator{
					row:      domain.ServicePerformanceRow{ServiceID: svc.ID, ServiceName: svc.Name},
					invoices: make(map[string]struct{}),
				}
				byService[svc.ID] = acc
			}
			acc.row.Qty += int64(item.Qty)
			acc.row.RevenuePaise += item.TotalPaise
			acc.invoices[invoice.ID] = struct{}{}
		}
	}

	rows := make([]domain.ServicePerformanceRow, 0, len(byService))
	for _, acc := range byService {
		acc.row.InvoiceCount = int64(len(acc.invoices))
		rows = append(rows, acc.row)
	}
	return rows, nil
}

func (s *Store) serviceNameTaken(shopID string, name string, exceptID string) bool {
	for _, svc := range s.servicesByID {
		if svc.ShopID == shopID && svc.Name == name && svc.ID != exceptID {
			return true
		}
	}
	return false
}

func firstPayment(payments []domain.Payment) *domain.Payment {
	var first *domain.Payment
	for i := range payments {
		p := &payments[i]
		if first == nil || p.CreatedAt.Before(first.CreatedAt) {
			first = p
		}
	}
	return first
}

func cloneInvoice(invoice *domain.Invoice) *domain.Invoice {
	if invoice == nil {
		return nil
	}
	copyInvoice := *invoice
	copyInvoice.Items = append([]domain.InvoiceItem(nil), invoice.Items...)
	copyInvoice.Payments = append([]domain.Payment(nil), invoice.Payments...)
	slices.SortStableFunc(copyInvoice.Items, func(a, b domain.InvoiceItem) int {
		return cmp.Compare(a.Position, b.Position)
	})
	slices.SortStableFunc(copyInvoice.Payments, func(a, b domain.Payment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return &copyInvoice
}
