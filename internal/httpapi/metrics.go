package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barberbill/backend/internal/domain"
)

type metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	invoicesCreated *prometheus.CounterVec
	invoicedPaise   *prometheus.CounterVec
}

// newMetrics uses a private registry so several APIs can coexist in one
// process (tests build one per case).
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barberbill",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		invoicesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barberbill",
			Name:      "invoices_created_total",
			Help:      "Invoices created, by payment method.",
		}, []string{"payment_method"}),
		invoicedPaise: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barberbill",
			Name:      "invoice_amount_paise_total",
			Help:      "Sum of invoice totals in paise, by payment method.",
		}, []string{"payment_method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.invoicesCreated,
		m.invoicedPaise,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRequest(route string, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *metrics) observeInvoice(invoice domain.InvoiceDetail) {
	method := string(domain.PaymentMethodCash)
	if len(invoice.Payments) > 0 {
		method = invoice.Payments[0].Method
	}
	m.invoicesCreated.WithLabelValues(method).Inc()
	m.invoicedPaise.WithLabelValues(method).Add(float64(invoice.TotalPaise))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
