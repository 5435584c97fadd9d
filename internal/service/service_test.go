package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/report"
	"barberbill/backend/internal/store"
	"barberbill/backend/internal/store/memory"
	"barberbill/backend/internal/xid"
)

type fixture struct {
	svc   *Service
	repo  *memory.Store
	ctx   context.Context
	shop  domain.Shop
	svcA  domain.Service
	svcB  domain.Service
	alice domain.Customer
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	repo := memory.New()
	svc := New(repo, nil, nil)
	shop := domain.Shop{ID: xid.New(), Name: "Shop One"}
	ctx := WithShop(context.Background(), shop)

	a, err := svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "Haircut", PricePaise: 10000})
	require.NoError(t, err)
	b, err := svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "Beard Trim", PricePaise: 5000})
	require.NoError(t, err)
	phone := "9876543210"
	alice, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Alice", Phone: &phone})
	require.NoError(t, err)

	return fixture{svc: svc, repo: repo, ctx: ctx, shop: shop, svcA: a, svcB: b, alice: alice}
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	f := newFixture(t)

	invoice, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		CustomerID: &f.alice.ID,
		Items: []domain.InvoiceItemRequest{
			{ServiceID: f.svcA.ID, Qty: intPtr(1)},
			{ServiceID: f.svcB.ID, Qty: intPtr(2)},
		},
		DiscountPaise: 3000,
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), invoice.SubtotalPaise)
	assert.Equal(t, int64(3000), invoice.DiscountPaise)
	assert.Equal(t, int64(17000), invoice.TotalPaise)
	assert.Equal(t, domain.InvoiceStatusPaid, invoice.Status)
	require.NotNil(t, invoice.CustomerName)
	assert.Equal(t, "Alice", *invoice.CustomerName)

	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Haircut", invoice.Items[0].Description)
	assert.Equal(t, int64(10000), invoice.Items[0].TotalPaise)
	assert.Equal(t, "Beard Trim", invoice.Items[1].Description)
	assert.Equal(t, 2, invoice.Items[1].Qty)
	assert.Equal(t, int64(10000), invoice.Items[1].TotalPaise)

	require.Len(t, invoice.Payments, 1)
	assert.Equal(t, "cash", invoice.Payments[0].Method)
	assert.Equal(t, int64(17000), invoice.Payments[0].AmountPaise)
	assert.Nil(t, invoice.Payments[0].Reference)
}

func TestCreateInvoiceDefaultsQtyAndMethod(t *testing.T) {
	f := newFixture(t)

	invoice, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	require.NoError(t, err)

	assert.Nil(t, invoice.CustomerID)
	assert.Equal(t, 1, invoice.Items[0].Qty)
	assert.Equal(t, "cash", invoice.Payments[0].Method)
	assert.Equal(t, int64(10000), invoice.TotalPaise)
}

func TestCreateInvoiceClampsDiscountToSubtotal(t *testing.T) {
	f := newFixture(t)

	invoice, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcB.ID}},
		DiscountPaise: 99999,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), invoice.SubtotalPaise)
	assert.Equal(t, int64(5000), invoice.DiscountPaise)
	assert.Equal(t, int64(0), invoice.TotalPaise)
	assert.Equal(t, int64(0), invoice.Payments[0].AmountPaise)
}

func TestCreateInvoiceUsesCurrentPrice(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	require.NoError(t, err)

	newPrice := int64(12000)
	_, err = f.svc.UpdateService(f.ctx, f.svcA.ID, domain.ServiceUpdateRequest{PricePaise: &newPrice})
	require.NoError(t, err)

	second, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), second.TotalPaise)

	reloaded, err := f.svc.GetInvoice(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), reloaded.Items[0].UnitPricePaise)
}

func TestCreateInvoiceRejectsUnknownServices(t *testing.T) {
	f := newFixture(t)
	missing := xid.New()

	_, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{
			{ServiceID: f.svcA.ID},
			{ServiceID: missing},
			{ServiceID: "bogus"},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReference))
	assert.Equal(t, "Invalid service(s): "+missing+", bogus", err.Error())

	invoices, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestCreateInvoiceRejectsOtherShopService(t *testing.T) {
	f := newFixture(t)
	otherCtx := WithShop(context.Background(), domain.Shop{ID: xid.New()})

	_, err := f.svc.CreateInvoice(otherCtx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReference))
}

func TestCreateInvoiceRejectsUnknownCustomer(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{xid.New(), "not-a-uuid"} {
		_, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
			CustomerID: strPtr(id),
			Items:      []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidReference))
		assert.Equal(t, "Customer not found", err.Error())
	}
}

func TestCreateInvoiceValidatesInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  domain.InvoiceCreateRequest
		want string
	}{
		{name: "no items", req: domain.InvoiceCreateRequest{}, want: "items"},
		{
			name: "qty zero",
			req:  domain.InvoiceCreateRequest{Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID, Qty: intPtr(0)}}},
			want: "qty must be at least 1",
		},
		{
			name: "qty too large",
			req:  domain.InvoiceCreateRequest{Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID, Qty: intPtr(101)}}},
			want: "qty must be at most 100",
		},
		{
			name: "negative discount",
			req:  domain.InvoiceCreateRequest{Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}}, DiscountPaise: -1},
			want: "discount_paise",
		},
		{
			name: "blank service",
			req:  domain.InvoiceCreateRequest{Items: []domain.InvoiceItemRequest{{ServiceID: "  "}}},
			want: "service_id is required",
		},
		{
			name: "unknown method",
			req:  domain.InvoiceCreateRequest{Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}}, PaymentMethod: "cheque"},
			want: "payment_method",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateInvoice(f.ctx, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCreateInvoicePaymentReference(t *testing.T) {
	f := newFixture(t)

	upi, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod: "UPI",
		UPIRef:        strPtr("  UPI-123 "),
	})
	require.NoError(t, err)
	assert.Equal(t, "upi", upi.Payments[0].Method)
	require.NotNil(t, upi.Payments[0].Reference)
	assert.Equal(t, "UPI-123", *upi.Payments[0].Reference)

	card, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:            []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod:    "Card",
		PaymentReference: strPtr("AUTH-9"),
	})
	require.NoError(t, err)
	require.NotNil(t, card.Payments[0].Reference)
	assert.Equal(t, "AUTH-9", *card.Payments[0].Reference)

	blank, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod: "upi",
		UPIRef:        strPtr("   "),
	})
	require.NoError(t, err)
	assert.Nil(t, blank.Payments[0].Reference)

	cash, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod: "cash",
		UPIRef:        strPtr("ignored"),
	})
	require.NoError(t, err)
	assert.Nil(t, cash.Payments[0].Reference)
}

func TestCreateInvoiceRequiresShop(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateInvoice(context.Background(), domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	assert.ErrorIs(t, err, ErrMissingShop)
}

func TestGetInvoiceIsShopScoped(t *testing.T) {
	f := newFixture(t)

	invoice, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		CustomerID: &f.alice.ID,
		Items:      []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
	})
	require.NoError(t, err)

	got, err := f.svc.GetInvoice(f.ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, got.ID)
	require.NotNil(t, got.CustomerPhone)
	assert.Equal(t, "9876543210", *got.CustomerPhone)

	otherCtx := WithShop(context.Background(), domain.Shop{ID: xid.New()})
	_, err = f.svc.GetInvoice(otherCtx, invoice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "Invoice not found", err.Error())

	_, err = f.svc.GetInvoice(f.ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListInvoicesFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, method := range []string{"cash", "UPI", "card"} {
		issuedAt := base.Add(time.Duration(i) * 24 * time.Hour)
		req := domain.InvoiceCreateRequest{
			IssuedAt:      &issuedAt,
			Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
			PaymentMethod: method,
		}
		if i == 1 {
			req.CustomerID = &f.alice.ID
		}
		_, err := f.svc.CreateInvoice(f.ctx, req)
		require.NoError(t, err)
	}

	all, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "CARD", all[0].PaymentMethod)
	assert.Equal(t, "UPI", all[1].PaymentMethod)
	assert.Equal(t, "CASH", all[2].PaymentMethod)
	require.NotNil(t, all[1].CustomerName)
	assert.Equal(t, "Alice", *all[1].CustomerName)

	byCustomer, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{CustomerID: f.alice.ID})
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)

	start := base.Add(24 * time.Hour)
	end := base.Add(48 * time.Hour)
	windowed, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "UPI", windowed[0].PaymentMethod)

	limited, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	malformed, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{CustomerID: "xyz"})
	require.NoError(t, err)
	assert.Empty(t, malformed)

	otherCtx := WithShop(context.Background(), domain.Shop{ID: xid.New()})
	foreign, err := f.svc.ListInvoices(otherCtx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestResolveServicesDeduplicates(t *testing.T) {
	f := newFixture(t)

	found, err := f.svc.ResolveServices(f.ctx, f.shop.ID, []string{f.svcA.ID, f.svcA.ID, f.svcB.ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	missing := xid.New()
	_, err = f.svc.ResolveServices(f.ctx, f.shop.ID, []string{missing, missing})
	require.Error(t, err)
	assert.Equal(t, "Invalid service(s): "+missing, err.Error())
}

func TestInactiveServiceCanStillBeBilled(t *testing.T) {
	f := newFixture(t)
	inactive := false

	_, err := f.svc.UpdateService(f.ctx, f.svcB.ID, domain.ServiceUpdateRequest{Active: &inactive})
	require.NoError(t, err)

	invoice, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: f.svcB.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), invoice.TotalPaise)
}

func TestServiceCatalogRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateService(f.ctx, domain.ServiceCreateRequest{Name: "Haircut", PricePaise: 100})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.svc.CreateService(f.ctx, domain.ServiceCreateRequest{Name: "  ", PricePaise: 100})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateService(f.ctx, domain.ServiceCreateRequest{Name: "Facial", PricePaise: -1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateService(f.ctx, xid.New(), domain.ServiceUpdateRequest{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	rename := "Beard Trim"
	_, err = f.svc.UpdateService(f.ctx, f.svcA.ID, domain.ServiceUpdateRequest{Name: &rename})
	assert.ErrorIs(t, err, store.ErrConflict)

	services, err := f.svc.ListServices(f.ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "Beard Trim", services[0].Name)
}

func TestCustomerRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{Name: "Bob", Phone: strPtr("9876543210")})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{Name: "Bob", DOB: strPtr("31-01-1990")})
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "dob"))

	optOut := false
	bob, err := f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{
		Name:          "Bob",
		DOB:           strPtr("1990-01-31"),
		WhatsAppOptIn: &optOut,
	})
	require.NoError(t, err)
	assert.True(t, bob.MarketingConsent)
	assert.False(t, bob.WhatsAppOptIn)
	require.NotNil(t, bob.DOB)
	assert.Equal(t, time.January, bob.DOB.Month())

	got, err := f.svc.GetCustomer(f.ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)

	otherCtx := WithShop(context.Background(), domain.Shop{ID: xid.New()})
	_, err = f.svc.GetCustomer(otherCtx, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReportsRequireWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	_, err := f.svc.CustomerInsights(f.ctx, domain.CustomerInsightsQuery{End: now})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ServicePerformance(f.ctx, domain.ServicePerformanceQuery{Start: now, End: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CustomerInsights(context.Background(), domain.CustomerInsightsQuery{Start: now, End: now})
	assert.ErrorIs(t, err, ErrMissingShop)
}

func TestCustomerInsightsReflectNewInvoices(t *testing.T) {
	f := newFixture(t)
	issuedAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	q := domain.CustomerInsightsQuery{Start: start, End: end, DormantDays: 30, Limit: 10}

	before, err := f.svc.CustomerInsights(f.ctx, q)
	require.NoError(t, err)
	assert.Empty(t, before.TopCustomers)

	for range 2 {
		_, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
			CustomerID: &f.alice.ID,
			IssuedAt:   &issuedAt,
			Items:      []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		})
		require.NoError(t, err)
	}

	after, err := f.svc.CustomerInsights(f.ctx, q)
	require.NoError(t, err)
	require.Len(t, after.RepeatCustomers, 1)
	assert.Equal(t, int64(2), after.RepeatCustomers[0].BillCount)
	assert.Equal(t, int64(20000), after.RepeatCustomers[0].NetPaise)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gens    map[string]int64
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}, gens: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Generation(_ context.Context, shopID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[shopID], nil
}

func (c *mapCache) Invalidate(_ context.Context, shopID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[shopID]++
	return nil
}

func TestCachedReportsFollowCatalogAndCustomerWrites(t *testing.T) {
	repo := memory.New()
	reportCache := newMapCache()
	svc := New(repo, report.NewEngine(repo, reportCache, time.Minute, nil), nil)
	ctx := WithShop(context.Background(), domain.Shop{ID: xid.New(), Name: "Cached"})

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	issuedAt := start.Add(48 * time.Hour)
	insightsQuery := domain.CustomerInsightsQuery{Start: start, End: end, DormantDays: 30, IncludeNever: true, Limit: 10}
	perfQuery := domain.ServicePerformanceQuery{Start: start, End: end, Limit: 10}

	cut, err := svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "Old", PricePaise: 10000})
	require.NoError(t, err)
	_, err = svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		IssuedAt: &issuedAt,
		Items:    []domain.InvoiceItemRequest{{ServiceID: cut.ID}},
	})
	require.NoError(t, err)

	insights, err := svc.CustomerInsights(ctx, insightsQuery)
	require.NoError(t, err)
	assert.Empty(t, insights.DormantCustomers)
	perf, err := svc.ServicePerformance(ctx, perfQuery)
	require.NoError(t, err)
	require.Len(t, perf.TopByRevenue, 1)
	assert.Equal(t, "Old", perf.TopByRevenue[0].ServiceName)
	assert.NotEmpty(t, reportCache.entries)

	_, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Nina"})
	require.NoError(t, err)
	insights, err = svc.CustomerInsights(ctx, insightsQuery)
	require.NoError(t, err)
	require.Len(t, insights.DormantCustomers, 1)
	assert.Equal(t, "Nina", insights.DormantCustomers[0].CustomerName)

	renamed := "Renamed"
	_, err = svc.UpdateService(ctx, cut.ID, domain.ServiceUpdateRequest{Name: &renamed})
	require.NoError(t, err)
	perf, err = svc.ServicePerformance(ctx, perfQuery)
	require.NoError(t, err)
	require.Len(t, perf.TopByRevenue, 1)
	assert.Equal(t, "Renamed", perf.TopByRevenue[0].ServiceName)

	_, err = svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "Fresh", PricePaise: 100})
	require.NoError(t, err)
	gen, err := reportCache.Generation(ctx, cut.ShopID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), gen)
}

func TestCreateInvoiceRejectsOverflowingAmounts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateService(f.ctx, domain.ServiceCreateRequest{Name: "Gold Facial", PricePaise: 1 << 62})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "price_paise must be at most")

	huge := int64(1 << 62)
	_, err = f.svc.UpdateService(f.ctx, f.svcA.ID, domain.ServiceUpdateRequest{PricePaise: &huge})
	require.ErrorIs(t, err, ErrValidation)

	now := time.Now().UTC()
	gold, err := f.repo.CreateService(f.ctx, domain.Service{
		ID: xid.New(), ShopID: f.shop.ID, Name: "Gold", PricePaise: huge, Active: true, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: gold.ID, Qty: intPtr(4)}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: gold.ID}, {ServiceID: gold.ID}},
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "invoice subtotal is too large", err.Error())

	one, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemRequest{{ServiceID: gold.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, huge, one.TotalPaise)

	invoices, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestCreateInvoiceRejectsLongPaymentReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod: "UPI",
		UPIRef:        strPtr(strings.Repeat("r", 121)),
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "payment_reference must be at most 120 characters")

	_, err = f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:            []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod:    "card",
		PaymentReference: strPtr(strings.Repeat("r", 121)),
	})
	require.ErrorIs(t, err, ErrValidation)

	invoices, err := f.svc.ListInvoices(f.ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	fits, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		PaymentMethod: "UPI",
		UPIRef:        strPtr(strings.Repeat("r", 120)),
	})
	require.NoError(t, err)
	require.NotNil(t, fits.Payments[0].Reference)
	assert.Len(t, *fits.Payments[0].Reference, 120)

	cash, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
		Items:  []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}},
		UPIRef: strPtr(strings.Repeat("r", 500)),
	})
	require.NoError(t, err)
	assert.Nil(t, cash.Payments[0].Reference)
}

func TestReportsNeverExposeOtherShops(t *testing.T) {
	f := newFixture(t)
	issuedAt := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for range 2 {
		_, err := f.svc.CreateInvoice(f.ctx, domain.InvoiceCreateRequest{
			CustomerID: &f.alice.ID,
			IssuedAt:   &issuedAt,
			Items:      []domain.InvoiceItemRequest{{ServiceID: f.svcA.ID}, {ServiceID: f.svcB.ID}},
		})
		require.NoError(t, err)
	}

	own, err := f.svc.ServicePerformance(f.ctx, domain.ServicePerformanceQuery{Start: start, End: end, Limit: 10})
	require.NoError(t, err)
	require.Len(t, own.TopByRevenue, 2)

	otherCtx := WithShop(context.Background(), domain.Shop{ID: xid.New(), Name: "Other"})
	_, err = f.svc.CreateCustomer(otherCtx, domain.CustomerCreateRequest{Name: "Local"})
	require.NoError(t, err)

	insights, err := f.svc.CustomerInsights(otherCtx, domain.CustomerInsightsQuery{
		Start: start, End: end, DormantDays: 1, IncludeNever: true, Limit: 100,
	})
	require.NoError(t, err)
	assert.Empty(t, insights.RepeatCustomers)
	assert.Empty(t, insights.TopCustomers)
	require.Len(t, insights.DormantCustomers, 1)
	assert.Equal(t, "Local", insights.DormantCustomers[0].CustomerName)

	perf, err := f.svc.ServicePerformance(otherCtx, domain.ServicePerformanceQuery{Start: start, End: end, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, perf.TopByRevenue)
	assert.Empty(t, perf.TopByQuantity)
}
