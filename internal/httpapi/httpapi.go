package httpapi

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/report"
	"barberbill/backend/internal/service"
	"barberbill/backend/internal/store"
)

const csrfCookie = "csrf_token"

type API struct {
	service       *service.Service
	identity      *IdentityVerifier
	allowedOrigin string
	metrics       *metrics
	logger        *zap.Logger
}

func New(svc *service.Service, identity *IdentityVerifier, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		identity:      identity,
		allowedOrigin: allowedOrigin,
		metrics:       newMetrics(),
		logger:        logger.Named("http"),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.handler())

	mux.HandleFunc("/api/v1/shop", a.requireShop(a.handleShop))
	mux.HandleFunc("/api/v1/services", a.requireShop(a.handleServices))
	mux.HandleFunc("/api/v1/services/{id}", a.requireShop(a.handleServiceActions))
	mux.HandleFunc("/api/v1/customers", a.requireShop(a.handleCustomers))
	mux.HandleFunc("/api/v1/customers/{id}", a.requireShop(a.handleCustomerActions))
	mux.HandleFunc("/api/v1/invoices", a.requireShop(a.handleInvoices))
	mux.HandleFunc("/api/v1/invoices/{id}", a.requireShop(a.handleInvoiceActions))
	mux.HandleFunc("/api/v1/reports/customers", a.requireShop(a.handleCustomerInsights))
	mux.HandleFunc("/api/v1/reports/services", a.requireShop(a.handleServicePerformance))

	return a.withMiddleware(mux)
}

// requireShop resolves the caller's shop from its access token. Cookie
// sessions must echo the csrf_token cookie in X-CSRF-Token on writes.
func (a *API) requireShop(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing access token"))
			return
		}

		shop, err := a.identity.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if usesCookieSession(r) && !isSafeMethod(r.Method) && !validCSRF(r) {
			a.writeError(w, http.StatusForbidden, errors.New("invalid or missing CSRF token"))
			return
		}

		next(w, r.WithContext(service.WithShop(r.Context(), shop)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.service.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok": false,
			"at": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleShop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	shop, _ := service.ShopFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"shop": shop})
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := a.service.ListServices(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": services})
	case http.MethodPost:
		var req domain.ServiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateService(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"service": created})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleServiceActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.ServiceUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.service.UpdateService(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": updated})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": created})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		start, err := parseTimeParam(query, "start")
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		end, err := parseTimeParam(query, "end")
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		invoices, err := a.service.ListInvoices(r.Context(), domain.InvoiceFilter{
			CustomerID: query.Get("customer_id"),
			Start:      start,
			End:        end,
			Limit:      parsePositiveLimit(query.Get("limit"), 200, 200),
		})
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
	case http.MethodPost:
		var req domain.InvoiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.CreateInvoice(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.metrics.observeInvoice(invoice)
		writeJSON(w, http.StatusCreated, invoice)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	invoice, err := a.service.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleCustomerInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	start, end, err := parseWindow(query)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	dormantDays, err := parseIntParam(query, "dormant_days", report.DefaultDormantDays)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	includeNever, err := parseBoolParam(query, "include_never", true)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseIntParam(query, "limit", report.DefaultLimit)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CustomerInsights(r.Context(), domain.CustomerInsightsQuery{
		Start:        start,
		End:          end,
		DormantDays:  dormantDays,
		IncludeNever: includeNever,
		Limit:        limit,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if wantsCSV(query) {
		body, err := customerInsightsToCSV(resp)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeCSV(w, fmt.Sprintf("customer-insights-%s.csv", resp.Start.Format("20060102")), body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleServicePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	start, end, err := parseWindow(query)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseIntParam(query, "limit", report.DefaultLimit)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ServicePerformance(r.Context(), domain.ServicePerformanceQuery{
		Start: start,
		End:   end,
		Limit: limit,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if wantsCSV(query) {
		body, err := servicePerformanceToCSV(resp)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeCSV(w, fmt.Sprintf("service-performance-%s.csv", resp.Start.Format("20060102")), body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.observeRequest(r.Pattern, r.Method, rec.status, elapsed)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func parseWindow(query map[string][]string) (time.Time, time.Time, error) {
	start, err := parseTimeParam(query, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTimeParam(query, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	var startAt, endAt time.Time
	if start != nil {
		startAt = *start
	}
	if end != nil {
		endAt = *end
	}
	return startAt, endAt, nil
}

func usesCookieSession(r *http.Request) bool {
	return !strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Authorization"))), "bearer ")
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func validCSRF(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	cookie, err := r.Cookie(csrfCookie)
	if err != nil || header == "" || cookie.Value == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(cookie.Value))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingShop):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidReference),
		errors.Is(err, store.ErrConflict):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusForError(err), err)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides 5xx causes from clients and logs them instead.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
