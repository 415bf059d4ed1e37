package app

import (
	"fmt"
	"time"

	"github.com/overseasops/claimgrid/api"
)

// ValidationError names the first field that failed local validation.
// Validation runs entirely client-side; nothing invalid reaches the wire.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ValidateClaim checks a new claim before insert.
func ValidateClaim(rec *api.ClaimRecord) error {
	if rec.OrderNo == "" {
		return &ValidationError{Field: "order_no", Msg: "required"}
	}
	if rec.CustomerName == "" {
		return &ValidationError{Field: "customer_name", Msg: "required"}
	}
	if rec.Type == "" {
		return &ValidationError{Field: "claim_type", Msg: "required"}
	}
	if rec.Amount <= 0 {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if rec.Quantity < 0 {
		return &ValidationError{Field: "quantity", Msg: "must not be negative"}
	}
	if rec.Ratio < 0 || rec.Ratio > 1 {
		return &ValidationError{Field: "ratio", Msg: "must be between 0 and 1"}
	}
	if rec.ShipDate != "" {
		if _, err := time.Parse("2006-01-02", rec.ShipDate); err != nil {
			return &ValidationError{Field: "ship_date", Msg: "must be YYYY-MM-DD"}
		}
	}
	return nil
}

// validateFields checks an edit patch. Only staged fields are validated.
func validateFields(fields map[string]any) error {
	if v, ok := fields["order_no"]; ok {
		if s, _ := v.(string); s == "" {
			return &ValidationError{Field: "order_no", Msg: "required"}
		}
	}
	if v, ok := fields["amount"]; ok {
		if f, isF := v.(float64); isF && f <= 0 {
			return &ValidationError{Field: "amount", Msg: "must be positive"}
		}
	}
	if v, ok := fields["ratio"]; ok {
		if f, isF := v.(float64); isF && (f < 0 || f > 1) {
			return &ValidationError{Field: "ratio", Msg: "must be between 0 and 1"}
		}
	}
	if v, ok := fields["status"]; ok {
		s, _ := v.(string)
		valid := false
		for _, st := range api.Statuses() {
			if string(st) == s {
				valid = true
				break
			}
		}
		if !valid {
			return &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", s)}
		}
	}
	return nil
}
