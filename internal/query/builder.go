// Package query translates the list view's filter, search, and sort state
// into remote table-API predicates.
package query

import (
	"strconv"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
)

// SearchMode selects how the free-text term matches a field.
type SearchMode string

const (
	// Fuzzy is case-insensitive substring match.
	Fuzzy SearchMode = "fuzzy"
	// Exact is case-insensitive full-value equality.
	Exact SearchMode = "exact"
)

// Filters is the active filter set of the list view.
type Filters struct {
	Status api.Status // api.StatusAll means no restriction

	Search      string
	SearchMode  SearchMode
	SearchField string // one column name, or "" for all searchable fields

	Advanced Advanced
}

// Advanced is the structured per-field predicate object.
type Advanced struct {
	// Substring-matched identifiers.
	OrderNo    string
	TrackingNo string
	SKU        string

	// Exact-matched enumerated fields.
	Warehouse string
	ClaimType api.ClaimType

	// Inclusive date ranges, YYYY-MM-DD. Ship date is stored date-only;
	// submission date is stored with time precision and must widen to the
	// full calendar day.
	ShipDateFrom  string
	ShipDateTo    string
	SubmittedFrom string
	SubmittedTo   string
}

// IsZero reports whether no advanced predicate is set.
func (a Advanced) IsZero() bool {
	return a == Advanced{}
}

// Sort is the active sort. UserChosen distinguishes an explicit user pick
// from the system default, which decides whether sort survives actions
// that reset filters.
type Sort struct {
	Column     string
	Desc       bool
	UserChosen bool
}

// DefaultSort is newest submissions first.
func DefaultSort() Sort {
	return Sort{Column: "submitted_at", Desc: true}
}

// searchableFields are the columns free-text search covers, in canonical
// order. Date-typed columns are absent: the backend has no pattern match
// for them.
var searchableFields = []string{
	"order_no",
	"tracking_no",
	"sku",
	"customer_name",
	"customer_contact",
	"warehouse",
	"description",
	"remarks",
	"amount",
	"declared_value",
}

// numericFields always use equality regardless of search mode; the term
// must parse as a number or the field is skipped.
var numericFields = map[string]bool{
	"amount":         true,
	"declared_value": true,
	"quantity":       true,
	"ratio":          true,
}

// SearchableFields returns the canonical searchable column list.
func SearchableFields() []string {
	out := make([]string, len(searchableFields))
	copy(out, searchableFields)
	return out
}

// Build translates filters, sort, and pagination into one remote query.
// Predicate categories are AND-combined; the multi-field search is a
// single OR group.
func Build(f Filters, s Sort, page, pageSize int) *remote.Query {
	q := &remote.Query{}

	if f.Status != "" && f.Status != api.StatusAll {
		q.Eq("status", string(f.Status))
	}

	if conds := searchConds(f); len(conds) > 0 {
		q.Any(conds...)
	}

	a := f.Advanced
	if a.OrderNo != "" {
		q.Match("order_no", a.OrderNo)
	}
	if a.TrackingNo != "" {
		q.Match("tracking_no", a.TrackingNo)
	}
	if a.SKU != "" {
		q.Match("sku", a.SKU)
	}
	if a.Warehouse != "" {
		q.Eq("warehouse", a.Warehouse)
	}
	if a.ClaimType != "" {
		q.Eq("claim_type", string(a.ClaimType))
	}
	q.Range("ship_date", a.ShipDateFrom, a.ShipDateTo)
	q.Range("submitted_at", widenDayStart(a.SubmittedFrom), widenDayEnd(a.SubmittedTo))

	col := s.Column
	if col == "" {
		col = DefaultSort().Column
	}
	q.OrderBy(col, s.Desc)
	q.Page(page, pageSize)
	return q
}

// searchConds produces the OR group for the free-text term. A non-numeric
// term over only-numeric candidates yields no conditions, a graceful
// no-op, not an error.
func searchConds(f Filters) []remote.Cond {
	term := f.Search
	if term == "" {
		return nil
	}
	fields := searchableFields
	if f.SearchField != "" {
		fields = []string{f.SearchField}
	}

	numeric, numericOK := normalizeNumeric(term)

	var conds []remote.Cond
	for _, field := range fields {
		if numericFields[field] {
			if !numericOK {
				continue
			}
			conds = append(conds, remote.Cond{Column: field, Op: remote.OpEq, Value: numeric})
			continue
		}
		op := remote.OpILike
		if f.SearchMode == Exact {
			op = remote.OpEq
		}
		conds = append(conds, remote.Cond{Column: field, Op: op, Value: term})
	}
	return conds
}

// normalizeNumeric parses term as a number and re-renders it canonically
// so "12.50" and "12.5" hit the same stored value.
func normalizeNumeric(term string) (string, bool) {
	v, err := strconv.ParseFloat(term, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

// Submission timestamps carry time precision; a bare date bound must cover
// the whole calendar day.

func widenDayStart(date string) string {
	if date == "" {
		return ""
	}
	return date + "T00:00:00Z"
}

func widenDayEnd(date string) string {
	if date == "" {
		return ""
	}
	return date + "T23:59:59Z"
}
