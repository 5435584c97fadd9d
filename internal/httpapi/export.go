package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gocarina/gocsv"

	"barberbill/backend/internal/domain"
)

type customerInsightCSVRow struct {
	Section       string `csv:"section"`
	CustomerID    string `csv:"customer_id"`
	CustomerName  string `csv:"customer_name"`
	BillCount     int64  `csv:"bill_count"`
	GrossPaise    int64  `csv:"gross_paise"`
	DiscountPaise int64  `csv:"discount_paise"`
	NetPaise      int64  `csv:"net_paise"`
	LastInvoiceAt string `csv:"last_invoice_at"`
}

type servicePerformanceCSVRow struct {
	Section      string `csv:"section"`
	ServiceID    string `csv:"service_id"`
	ServiceName  string `csv:"service_name"`
	Qty          int64  `csv:"qty"`
	RevenuePaise int64  `csv:"revenue_paise"`
	InvoiceCount int64  `csv:"invoice_count"`
}

// customerInsightsToCSV flattens the three lists into one sheet. Dormant
// rows report their all-time bill count and no window amounts.
func customerInsightsToCSV(report domain.CustomerInsights) (string, error) {
	rows := make([]customerInsightCSVRow, 0, len(report.RepeatCustomers)+len(report.TopCustomers)+len(report.DormantCustomers))
	for _, row := range report.RepeatCustomers {
		rows = append(rows, insightCSVRow("repeat", row))
	}
	for _, row := range report.TopCustomers {
		rows = append(rows, insightCSVRow("top", row))
	}
	for _, row := range report.DormantCustomers {
		rows = append(rows, customerInsightCSVRow{
			Section:       "dormant",
			CustomerID:    row.CustomerID,
			CustomerName:  row.CustomerName,
			BillCount:     row.BillCountAllTime,
			LastInvoiceAt: formatOptionalTime(row.LastInvoiceAt),
		})
	}
	return gocsv.MarshalString(&rows)
}

func servicePerformanceToCSV(report domain.ServicePerformance) (string, error) {
	rows := make([]servicePerformanceCSVRow, 0, len(report.TopByRevenue)+len(report.TopByQuantity))
	for _, row := range report.TopByRevenue {
		rows = append(rows, serviceCSVRow("revenue", row))
	}
	for _, row := range report.TopByQuantity {
		rows = append(rows, serviceCSVRow("quantity", row))
	}
	return gocsv.MarshalString(&rows)
}

func insightCSVRow(section string, row domain.CustomerInsightRow) customerInsightCSVRow {
	return customerInsightCSVRow{
		Section:       section,
		CustomerID:    row.CustomerID,
		CustomerName:  row.CustomerName,
		BillCount:     row.BillCount,
		GrossPaise:    row.GrossPaise,
		DiscountPaise: row.DiscountPaise,
		NetPaise:      row.NetPaise,
		LastInvoiceAt: formatOptionalTime(row.LastInvoiceAt),
	}
}

func serviceCSVRow(section string, row domain.ServicePerformanceRow) servicePerformanceCSVRow {
	return servicePerformanceCSVRow{
		Section:      section,
		ServiceID:    row.ServiceID,
		ServiceName:  row.ServiceName,
		Qty:          row.Qty,
		RevenuePaise: row.RevenuePaise,
		InvoiceCount: row.InvoiceCount,
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeCSV(w http.ResponseWriter, filename string, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
