package store

import (
	"context"
	"errors"
	"time"

	"barberbill/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidInvoice = errors.New("invalid invoice")
)

type Repository interface {
	Ping(ctx context.Context) error
	// EnsureShop records the tenant row that catalog and customer rows hang off.
	EnsureShop(ctx context.Context, shop domain.Shop) error

	ListServices(ctx context.Context, shopID string) ([]domain.Service, error)
	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	GetService(ctx context.Context, shopID string, id string) (*domain.Service, error)
	UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	GetServicesByIDs(ctx context.Context, shopID string, ids []string) (map[string]domain.Service, error)

	ListCustomers(ctx context.Context, shopID string, limit int) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, shopID string, id string) (*domain.Customer, error)

	// CreateInvoice persists the header, its items and its payments as one
	// unit. Nothing is stored when any part fails.
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, shopID string, id string) (*domain.Invoice, error)
	// ListInvoices returns summaries newest first. PaymentMethod carries the
	// stored method of the earliest payment, unnormalised.
	ListInvoices(ctx context.Context, shopID string, filter domain.InvoiceFilter) ([]domain.InvoiceSummary, error)

	ReportSource
}

// ReportSource exposes unranked aggregates over a shop's invoices.
type ReportSource interface {
	// CustomerWindowAggregates covers invoices with issued_at in [start, end)
	// that reference a customer of the shop.
	CustomerWindowAggregates(ctx context.Context, shopID string, start time.Time, end time.Time) ([]domain.CustomerInsightRow, error)
	// CustomerActivity returns every customer of the shop with their all-time
	// invoice count and latest issued_at, nil when never billed.
	CustomerActivity(ctx context.Context, shopID string) ([]domain.DormantCustomerRow, error)
	// ServiceAggregates covers items of invoices in [start, end) whose service
	// still exists in the shop.
	ServiceAggregates(ctx context.Context, shopID string, start time.Time, end time.Time) ([]domain.ServicePerformanceRow, error)
}
