// Package remote speaks the hosted table API: structured queries with
// equality / substring / range predicates, ordering, offset-limit
// pagination with an exact total count, row mutations by id, and a
// realtime change feed.
package remote

import (
	"fmt"
	"net/url"
	"strings"
)

// Op is a filter operator understood by the backend.
type Op string

const (
	OpEq    Op = "eq"    // exact match (case-insensitive for text columns)
	OpILike Op = "ilike" // case-insensitive substring match
	OpGte   Op = "gte"   // >= (inclusive range lower bound)
	OpLte   Op = "lte"   // <= (inclusive range upper bound)
)

// Cond is one column predicate.
type Cond struct {
	Column string
	Op     Op
	Value  string
}

// String renders the wire form `column.op.value` with the value escaped so
// dots and commas inside it cannot be mistaken for separators.
func (c Cond) String() string {
	return c.Column + "." + string(c.Op) + "." + url.QueryEscape(c.Value)
}

// Order is a single-column sort.
type Order struct {
	Column string
	Desc   bool
}

// Query is one paginated request against the claims table. Conds are
// AND-combined; each OrGroup is OR-combined internally and ANDed with the
// rest. Limit of 0 means the backend default.
type Query struct {
	Conds    []Cond
	OrGroups [][]Cond
	Order    *Order
	Offset   int
	Limit    int
}

// Eq appends an equality predicate and returns the query for chaining.
func (q *Query) Eq(column, value string) *Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpEq, Value: value})
	return q
}

// Match appends a case-insensitive substring predicate.
func (q *Query) Match(column, value string) *Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: OpILike, Value: value})
	return q
}

// Range appends an inclusive [lo, hi] range on column. Empty bounds are
// skipped, so a half-open range is just one predicate.
func (q *Query) Range(column, lo, hi string) *Query {
	if lo != "" {
		q.Conds = append(q.Conds, Cond{Column: column, Op: OpGte, Value: lo})
	}
	if hi != "" {
		q.Conds = append(q.Conds, Cond{Column: column, Op: OpLte, Value: hi})
	}
	return q
}

// Any appends an OR group. Groups with no conditions are dropped.
func (q *Query) Any(conds ...Cond) *Query {
	if len(conds) > 0 {
		q.OrGroups = append(q.OrGroups, conds)
	}
	return q
}

// OrderBy sets the sort column and direction.
func (q *Query) OrderBy(column string, desc bool) *Query {
	q.Order = &Order{Column: column, Desc: desc}
	return q
}

// Page sets offset/limit from a 1-based page number and page size.
func (q *Query) Page(page, size int) *Query {
	if page < 1 {
		page = 1
	}
	q.Offset = (page - 1) * size
	q.Limit = size
	return q
}

// Encode renders the query as URL parameters. The encoding is canonical:
// predicates appear in insertion order, so two queries built from the same
// logical description encode identically.
func (q *Query) Encode() url.Values {
	v := url.Values{}
	for _, c := range q.Conds {
		v.Add("filter", c.String())
	}
	for _, g := range q.OrGroups {
		parts := make([]string, len(g))
		for i, c := range g {
			parts[i] = c.String()
		}
		v.Add("or", "("+strings.Join(parts, ",")+")")
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Desc {
			dir = "desc"
		}
		v.Set("order", q.Order.Column+"."+dir)
	}
	if q.Offset > 0 {
		v.Set("offset", fmt.Sprintf("%d", q.Offset))
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	return v
}

// ParseCond decodes the wire form produced by Cond.String. Used by the
// stub backend; exported so both sides share one definition.
func ParseCond(s string) (Cond, error) {
	first := strings.Index(s, ".")
	if first < 0 {
		return Cond{}, fmt.Errorf("malformed filter %q", s)
	}
	rest := s[first+1:]
	second := strings.Index(rest, ".")
	if second < 0 {
		return Cond{}, fmt.Errorf("malformed filter %q", s)
	}
	op := Op(rest[:second])
	switch op {
	case OpEq, OpILike, OpGte, OpLte:
	default:
		return Cond{}, fmt.Errorf("unknown operator %q in filter %q", op, s)
	}
	value, err := url.QueryUnescape(rest[second+1:])
	if err != nil {
		return Cond{}, fmt.Errorf("unescape filter value in %q: %w", s, err)
	}
	return Cond{Column: s[:first], Op: op, Value: value}, nil
}

// ParseOrGroup decodes the parenthesized OR-group wire form.
func ParseOrGroup(s string) ([]Cond, error) {
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil, nil
	}
	var conds []Cond
	for _, part := range strings.Split(s, ",") {
		c, err := ParseCond(part)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}
