package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) EnsureShop(ctx context.Context, shop domain.Shop) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO NOTHING
	`, shop.ID, shop.Name)
	return err
}

func (s *Store) ListServices(ctx context.Context, shopID string) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, price_paise, active, created_at, updated_at
		FROM services
		WHERE shop_id = $1
		ORDER BY name, id
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.ShopID, &svc.Name, &svc.PricePaise, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, normalizeService(svc))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, shop_id, name, price_paise, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, svc.ID, svc.ShopID, svc.Name, svc.PricePaise, svc.Active, svc.CreatedAt, svc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) GetService(ctx context.Context, shopID string, id string) (*domain.Service, error) {
	var svc domain.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price_paise, active, created_at, updated_at
		FROM services
		WHERE id = $1 AND shop_id = $2
	`, id, shopID).Scan(&svc.ID, &svc.ShopID, &svc.Name, &svc.PricePaise, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	svc = normalizeService(svc)
	return &svc, nil
}

func (s *Store) UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	var updated domain.Service
	err := s.db.QueryRowContext(ctx, `
		UPDATE services
		SET name = $3, price_paise = $4, active = $5, updated_at = $6
		WHERE id = $1 AND shop_id = $2
		RETURNING id, shop_id, name, price_paise, active, created_at, updated_at
	`, svc.ID, svc.ShopID, svc.Name, svc.PricePaise, svc.Active, svc.UpdatedAt).Scan(
		&updated.ID, &updated.ShopID, &updated.Name, &updated.PricePaise, &updated.Active, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	updated = normalizeService(updated)
	return &updated, nil
}

func (s *Store) GetServicesByIDs(ctx context.Context, shopID string, ids []string) (map[string]domain.Service, error) {
	result := make(map[string]domain.Service, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, price_paise, active, created_at, updated_at
		FROM services
		WHERE shop_id = $1 AND id = ANY($2::uuid[])
	`, shopID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.ShopID, &svc.Name, &svc.PricePaise, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, err
		}
		result[svc.ID] = normalizeService(svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const customerColumns = `
	id, shop_id, name, phone, email, dob, gender, anniversary, referral_source,
	marketing_consent, whatsapp_opt_in, notes, created_at`

func (s *Store) ListCustomers(ctx context.Context, shopID string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE shop_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, customer.ID, customer.ShopID, customer.Name, customer.Phone, customer.Email, nullTime(customer.DOB),
		customer.Gender, nullTime(customer.Anniversary), customer.ReferralSource, customer.MarketingConsent,
		customer.WhatsAppOptIn, customer.Notes, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, shopID string, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1 AND shop_id = $2
	`, id, shopID)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || invoice.ShopID == "" || len(invoice.Items) == 0 || len(invoice.Payments) == 0 {
		return nil, store.ErrInvalidInvoice
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, shop_id, customer_id, issued_at, status,
			subtotal_paise, discount_paise, total_paise, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.ShopID, invoice.CustomerID, invoice.IssuedAt, invoice.Status,
		invoice.SubtotalPaise, invoice.DiscountPaise, invoice.TotalPaise, invoice.CreatedAt)
	if err != nil {
		return nil, wrapWriteError("insert invoice", err)
	}

	for _, item := range invoice.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (
				id, invoice_id, service_id, position, description,
				qty, unit_price_paise, total_paise, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, invoice.ID, item.ServiceID, item.Position, item.Description,
			item.Qty, item.UnitPricePaise, item.TotalPaise, item.CreatedAt)
		if err != nil {
			return nil, wrapWriteError("insert invoice item", err)
		}
	}

	for _, payment := range invoice.Payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, invoice_id, method, amount_paise, reference, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, payment.ID, invoice.ID, payment.Method, payment.AmountPaise, payment.Reference, payment.CreatedAt)
		if err != nil {
			return nil, wrapWriteError("insert payment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, shopID string, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, customer_id, issued_at, status,
			subtotal_paise, discount_paise, total_paise, created_at
		FROM invoices
		WHERE id = $1 AND shop_id = $2
	`, id, shopID).Scan(&invoice.ID, &invoice.ShopID, &customerID, &invoice.IssuedAt, &invoice.Status,
		&invoice.SubtotalPaise, &invoice.DiscountPaise, &invoice.TotalPaise, &invoice.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	invoice.CustomerID = stringPtr(customerID)
	invoice.IssuedAt = invoice.IssuedAt.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, position, description, qty, unit_price_paise, total_paise, created_at
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position ASC, created_at ASC, id ASC
	`, invoice.ID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	invoice.Items = make([]domain.InvoiceItem, 0, 8)
	for itemRows.Next() {
		var item domain.InvoiceItem
		var serviceID sql.NullString
		if err := itemRows.Scan(&item.ID, &serviceID, &item.Position, &item.Description, &item.Qty, &item.UnitPricePaise, &item.TotalPaise, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.InvoiceID = invoice.ID
		item.ServiceID = stringPtr(serviceID)
		item.CreatedAt = item.CreatedAt.UTC()
		invoice.Items = append(invoice.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT id, method, amount_paise, reference, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at ASC, id ASC
	`, invoice.ID)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()

	invoice.Payments = make([]domain.Payment, 0, 1)
	for paymentRows.Next() {
		var payment domain.Payment
		var reference sql.NullString
		if err := paymentRows.Scan(&payment.ID, &payment.Method, &payment.AmountPaise, &reference, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.InvoiceID = invoice.ID
		payment.Reference = stringPtr(reference)
		payment.CreatedAt = payment.CreatedAt.UTC()
		invoice.Payments = append(invoice.Payments, payment)
	}
	if err := paymentRows.Err(); err != nil {
		return nil, err
	}

	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, shopID string, filter domain.InvoiceFilter) ([]domain.InvoiceSummary, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.issued_at, i.customer_id, c.name,
			i.subtotal_paise, i.discount_paise, i.total_paise,
			(
				SELECT p.method
				FROM payments p
				WHERE p.invoice_id = i.id
				ORDER BY p.created_at ASC, p.id ASC
				LIMIT 1
			)
		FROM invoices i
		LEFT JOIN customers c ON c.id = i.customer_id AND c.shop_id = i.shop_id
		WHERE i.shop_id = $1
			AND ($2::uuid IS NULL OR i.customer_id = $2::uuid)
			AND ($3::timestamptz IS NULL OR i.issued_at >= $3::timestamptz)
			AND ($4::timestamptz IS NULL OR i.issued_at < $4::timestamptz)
		ORDER BY i.issued_at DESC, i.id DESC
		LIMIT $5
	`, shopID, nullIfEmpty(filter.CustomerID), nullTime(filter.Start), nullTime(filter.End), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.InvoiceSummary, 0, limit)
	for rows.Next() {
		var summary domain.InvoiceSummary
		var customerID sql.NullString
		var customerName sql.NullString
		var method sql.NullString
		if err := rows.Scan(&summary.ID, &summary.IssuedAt, &customerID, &customerName,
			&summary.SubtotalPaise, &summary.DiscountPaise, &summary.TotalPaise, &method); err != nil {
			return nil, err
		}
		summary.IssuedAt = summary.IssuedAt.UTC()
		summary.CustomerID = stringPtr(customerID)
		summary.CustomerName = stringPtr(customerName)
		summary.PaymentMethod = method.String
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) CustomerWindowAggregates(ctx context.Context, shopID string, start time.Time, end time.Time) ([]domain.CustomerInsightRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name,
			COUNT(i.id)::bigint,
			COALESCE(SUM(i.subtotal_paise), 0)::bigint,
			COALESCE(SUM(i.discount_paise), 0)::bigint,
			COALESCE(SUM(i.total_paise), 0)::bigint,
			MAX(i.issued_at)
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id AND c.shop_id = i.shop_id
		WHERE i.shop_id = $1
			AND i.issued_at >= $2
			AND i.issued_at < $3
		GROUP BY c.id, c.name
	`, shopID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CustomerInsightRow, 0, 64)
	for rows.Next() {
		var row domain.CustomerInsightRow
		var last sql.NullTime
		if err := rows.Scan(&row.CustomerID, &row.CustomerName, &row.BillCount, &row.GrossPaise, &row.DiscountPaise, &row.NetPaise, &last); err != nil {
			return nil, err
		}
		row.LastInvoiceAt = timePtr(last)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CustomerActivity(ctx context.Context, shopID string) ([]domain.DormantCustomerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, MAX(i.issued_at), COUNT(i.id)::bigint
		FROM customers c
		LEFT JOIN invoices i ON i.customer_id = c.id AND i.shop_id = c.shop_id
		WHERE c.shop_id = $1
		GROUP BY c.id, c.name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DormantCustomerRow, 0, 64)
	for rows.Next() {
		var row domain.DormantCustomerRow
		var last sql.NullTime
		if err := rows.Scan(&row.CustomerID, &row.CustomerName, &last, &row.BillCountAllTime); err != nil {
			return nil, err
		}
		row.LastInvoiceAt = timePtr(last)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ServiceAggregates(ctx context.Context, shopID string, start time.Time, end time.Time) ([]domain.ServicePerformanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name,
			COALESCE(SUM(ii.qty), 0)::bigint,
			COALESCE(SUM(ii.total_paise), 0)::bigint,
			COUNT(DISTINCT ii.invoice_id)::bigint
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		JOIN services s ON s.id = ii.service_id AND s.shop_id = i.shop_id
		WHERE i.shop_id = $1
			AND i.issued_at >= $2
			AND i.issued_at < $3
		GROUP BY s.id, s.name
	`, shopID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ServicePerformanceRow, 0, 32)
	for rows.Next() {
		var row domain.ServicePerformanceRow
		if err := rows.Scan(&row.ServiceID, &row.ServiceName, &row.Qty, &row.RevenuePaise, &row.InvoiceCount); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var phone, email, gender, referral, notes sql.NullString
	var dob, anniversary sql.NullTime
	if err := row.Scan(&c.ID, &c.ShopID, &c.Name, &phone, &email, &dob, &gender, &anniversary, &referral,
		&c.MarketingConsent, &c.WhatsAppOptIn, &notes, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Phone = stringPtr(phone)
	c.Email = stringPtr(email)
	c.Gender = stringPtr(gender)
	c.ReferralSource = stringPtr(referral)
	c.Notes = stringPtr(notes)
	c.DOB = timePtr(dob)
	c.Anniversary = timePtr(anniversary)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func normalizeService(svc domain.Service) domain.Service {
	svc.CreatedAt = svc.CreatedAt.UTC()
	svc.UpdatedAt = svc.UpdatedAt.UTC()
	return svc
}

func wrapWriteError(step string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrConflict, step)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func stringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
