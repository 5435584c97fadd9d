package domain

import (
	"strings"
	"time"
)

const InvoiceStatusPaid = "paid"

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodUPI   PaymentMethod = "upi"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodOther PaymentMethod = "other"
)

// ParsePaymentMethod accepts any casing; a blank value means cash.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if method == "" {
		return PaymentMethodCash, true
	}
	switch method {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard, PaymentMethodOther:
		return method, true
	}
	return "", false
}

func (m PaymentMethod) AcceptsReference() bool {
	return m != PaymentMethodCash
}

// DisplayPaymentMethod renders a stored method for summaries. Unknown or
// missing values fall back to CASH.
func DisplayPaymentMethod(stored string) string {
	method, ok := ParsePaymentMethod(stored)
	if !ok {
		method = PaymentMethodCash
	}
	return strings.ToUpper(string(method))
}

type Shop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Service struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"-"`
	Name       string    `json:"name"`
	PricePaise int64     `json:"price_paise"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ServiceCreateRequest struct {
	Name       string `json:"name" validate:"required,max=120"`
	PricePaise int64  `json:"price_paise" validate:"min=0,max=10000000000"`
	Active     *bool  `json:"active,omitempty"`
}

type ServiceUpdateRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	PricePaise *int64  `json:"price_paise,omitempty" validate:"omitempty,min=0,max=10000000000"`
	Active     *bool   `json:"active,omitempty"`
}

type Customer struct {
	ID               string     `json:"id"`
	ShopID           string     `json:"-"`
	Name             string     `json:"name"`
	Phone            *string    `json:"phone"`
	Email            *string    `json:"email"`
	DOB              *time.Time `json:"dob"`
	Gender           *string    `json:"gender"`
	Anniversary      *time.Time `json:"anniversary"`
	ReferralSource   *string    `json:"referral_source"`
	MarketingConsent bool       `json:"marketing_consent"`
	WhatsAppOptIn    bool       `json:"whatsapp_opt_in"`
	Notes            *string    `json:"notes"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name             string  `json:"name" validate:"required,max=200"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
	DOB              *string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender           *string `json:"gender,omitempty" validate:"omitempty,max=20"`
	Anniversary      *string `json:"anniversary,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReferralSource   *string `json:"referral_source,omitempty" validate:"omitempty,max=50"`
	MarketingConsent *bool   `json:"marketing_consent,omitempty"`
	WhatsAppOptIn    *bool   `json:"whatsapp_opt_in,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

type Invoice struct {
	ID            string        `json:"id"`
	ShopID        string        `json:"-"`
	CustomerID    *string       `json:"customer_id"`
	IssuedAt      time.Time     `json:"issued_at"`
	Status        string        `json:"status"`
	SubtotalPaise int64         `json:"subtotal_paise"`
	DiscountPaise int64         `json:"discount_paise"`
	TotalPaise    int64         `json:"total_paise"`
	CreatedAt     time.Time     `json:"created_at"`
	Items         []InvoiceItem `json:"items"`
	Payments      []Payment     `json:"payments"`
}

// InvoiceItem keeps its own copy of description and unit price; ServiceID
// is a weak reference that may outlive the service row.
type InvoiceItem struct {
	ID             string    `json:"id"`
	InvoiceID      string    `json:"-"`
	ServiceID      *string   `json:"service_id"`
	Position       int       `json:"-"`
	Description    string    `json:"description"`
	Qty            int       `json:"qty"`
	UnitPricePaise int64     `json:"unit_price_paise"`
	TotalPaise     int64     `json:"total_paise"`
	CreatedAt      time.Time `json:"-"`
}

type Payment struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"-"`
	Method      string    `json:"method"`
	AmountPaise int64     `json:"amount_paise"`
	Reference   *string   `json:"reference"`
	CreatedAt   time.Time `json:"created_at"`
}

type InvoiceItemRequest struct {
	ServiceID string `json:"service_id"`
	Qty       *int   `json:"qty,omitempty"`
}

type InvoiceCreateRequest struct {
	CustomerID       *string              `json:"customer_id,omitempty"`
	IssuedAt         *time.Time           `json:"issued_at,omitempty"`
	Items            []InvoiceItemRequest `json:"items"`
	DiscountPaise    int64                `json:"discount_paise"`
	PaymentMethod    string               `json:"payment_method"`
	UPIRef           *string              `json:"upi_ref,omitempty"`
	PaymentReference *string              `json:"payment_reference,omitempty"`
}

type InvoiceDetail struct {
	ID            string        `json:"id"`
	CustomerID    *string       `json:"customer_id"`
	CustomerName  *string       `json:"customer_name"`
	CustomerPhone *string       `json:"customer_phone"`
	IssuedAt      time.Time     `json:"issued_at"`
	Status        string        `json:"status"`
	SubtotalPaise int64         `json:"subtotal_paise"`
	DiscountPaise int64         `json:"discount_paise"`
	TotalPaise    int64         `json:"total_paise"`
	Items         []InvoiceItem `json:"items"`
	Payments      []Payment     `json:"payments"`
}

type InvoiceSummary struct {
	ID            string    `json:"id"`
	IssuedAt      time.Time `json:"issued_at"`
	CustomerID    *string   `json:"customer_id"`
	CustomerName  *string   `json:"customer_name"`
	SubtotalPaise int64     `json:"subtotal_paise"`
	DiscountPaise int64     `json:"discount_paise"`
	TotalPaise    int64     `json:"total_paise"`
	PaymentMethod string    `json:"payment_method"`
}

type InvoiceFilter struct {
	CustomerID string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

type CustomerInsightsQuery struct {
	Start        time.Time
	End          time.Time
	DormantDays  int
	IncludeNever bool
	Limit        int
}

type ServicePerformanceQuery struct {
	Start time.Time
	End   time.Time
	Limit int
}

// CustomerInsightRow aggregates one customer's invoices inside a window.
type CustomerInsightRow struct {
	CustomerID    string     `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	BillCount     int64      `json:"bill_count"`
	GrossPaise    int64      `json:"gross_paise"`
	DiscountPaise int64      `json:"discount_paise"`
	NetPaise      int64      `json:"net_paise"`
	LastInvoiceAt *time.Time `json:"last_invoice_at"`
}

// DormantCustomerRow describes a customer's all-time invoice history.
type DormantCustomerRow struct {
	CustomerID       string     `json:"customer_id"`
	CustomerName     string     `json:"customer_name"`
	LastInvoiceAt    *time.Time `json:"last_invoice_at"`
	BillCountAllTime int64      `json:"bill_count_all_time"`
}

type CustomerInsights struct {
	Start            time.Time            `json:"start"`
	End              time.Time            `json:"end"`
	DormantDays      int                  `json:"dormant_days"`
	IncludeNever     bool                 `json:"include_never"`
	Limit            int                  `json:"limit"`
	RepeatCustomers  []CustomerInsightRow `json:"repeat_customers"`
	TopCustomers     []CustomerInsightRow `json:"top_customers"`
	DormantCustomers []DormantCustomerRow `json:"dormant_customers"`
}

type ServicePerformanceRow struct {
	ServiceID    string `json:"service_id"`
	ServiceName  string `json:"service_name"`
	Qty          int64  `json:"qty"`
	RevenuePaise int64  `json:"revenue_paise"`
	InvoiceCount int64  `json:"invoice_count"`
}

type ServicePerformance struct {
	Start         time.Time               `json:"start"`
	End           time.Time               `json:"end"`
	Limit         int                     `json:"limit"`
	TopByRevenue  []ServicePerformanceRow `json:"top_by_revenue"`
	TopByQuantity []ServicePerformanceRow `json:"top_by_quantity"`
}
