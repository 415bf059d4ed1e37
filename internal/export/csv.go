// Package export serializes the currently filtered claim rows to CSV.
// Export always operates on the full filtered set, not the visible page;
// the app layer fetches every page before handing rows here.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/overseasops/claimgrid/api"
)

// columnHeaders maps column keys to human headers. Keys match the
// preference column names and the record's JSON field names.
var columnHeaders = map[string]string{
	"id":               "ID",
	"customer_name":    "Customer",
	"customer_contact": "Contact",
	"order_no":         "Order No",
	"tracking_no":      "Tracking No",
	"sku":              "SKU",
	"warehouse":        "Warehouse",
	"ship_date":        "Ship Date",
	"claim_type":       "Claim Type",
	"description":      "Description",
	"declared_value":   "Declared Value",
	"quantity":         "Quantity",
	"amount":           "Amount",
	"currency":         "Currency",
	"liability":        "Liability",
	"ratio":            "Ratio",
	"submitted_at":     "Submitted At",
	"status":           "Status",
	"remarks":          "Remarks",
	"updated_at":       "Updated At",
}

// WriteCSV writes rows as CSV to w, one column per entry of columns in
// order; unknown column keys are skipped. Dates are normalized to
// RFC 3339 (ship_date stays date-only, it carries no time component);
// every other field round-trips losslessly as text.
func WriteCSV(w io.Writer, rows []api.ClaimRecord, columns []string) error {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := columnHeaders[c]; ok {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return fmt.Errorf("export: no known columns in %v", columns)
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = columnHeaders[c]
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(cols))
	for i := range rows {
		for j, c := range cols {
			record[j] = fieldValue(&rows[i], c)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Filename derives an export filename from the active status filter and
// the export time.
func Filename(status api.Status, at time.Time) string {
	tag := string(status)
	if tag == "" {
		tag = string(api.StatusAll)
	}
	return fmt.Sprintf("claims_%s_%s.csv", tag, at.Format("20060102_150405"))
}

func fieldValue(r *api.ClaimRecord, col string) string {
	switch col {
	case "id":
		return r.ID
	case "customer_name":
		return r.CustomerName
	case "customer_contact":
		return r.CustomerContact
	case "order_no":
		return r.OrderNo
	case "tracking_no":
		return r.TrackingNo
	case "sku":
		return r.SKU
	case "warehouse":
		return r.Warehouse
	case "ship_date":
		return r.ShipDate
	case "claim_type":
		return string(r.Type)
	case "description":
		return r.Description
	case "declared_value":
		return formatFloat(r.DeclaredValue)
	case "quantity":
		return strconv.Itoa(r.Quantity)
	case "amount":
		return formatFloat(r.Amount)
	case "currency":
		return r.Currency
	case "liability":
		return r.Liability
	case "ratio":
		return formatFloat(r.Ratio)
	case "submitted_at":
		return formatTime(r.SubmittedAt)
	case "status":
		return string(r.Status)
	case "remarks":
		return r.Remarks
	case "updated_at":
		return formatTime(r.UpdatedAt)
	}
	return ""
}

// formatFloat keeps the shortest lossless decimal form.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
