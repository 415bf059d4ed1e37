package cache

import (
	"fmt"
	"strings"

	"github.com/overseasops/claimgrid/internal/query"
)

// KeyPrefix namespaces persisted query-result entries so they never
// collide with other state sharing the store.
const KeyPrefix = "cgq:"

// FilterSignature serializes the filter dimensions of a query, everything
// except sort and pagination, into a canonical string. Two logically
// identical filter sets always produce the same signature.
func FilterSignature(f query.Filters) string {
	var b strings.Builder
	b.WriteString("st=")
	b.WriteString(string(f.Status))
	b.WriteString("|q=")
	b.WriteString(escape(f.Search))
	b.WriteString("|qm=")
	b.WriteString(string(f.SearchMode))
	b.WriteString("|qf=")
	b.WriteString(f.SearchField)

	a := f.Advanced
	b.WriteString("|adv=")
	fmt.Fprintf(&b, "on:%s,tn:%s,sku:%s,wh:%s,ct:%s,sdf:%s,sdt:%s,suf:%s,sut:%s",
		escape(a.OrderNo), escape(a.TrackingNo), escape(a.SKU),
		escape(a.Warehouse), a.ClaimType,
		a.ShipDateFrom, a.ShipDateTo, a.SubmittedFrom, a.SubmittedTo)
	return b.String()
}

// Key derives the full cache key for one page of one logical query.
// Layout is filter-portion first so sort-only invalidation can match on a
// shared prefix without parsing.
func Key(f query.Filters, s query.Sort, page, pageSize int) string {
	col := s.Column
	if col == "" {
		col = query.DefaultSort().Column
	}
	dir := "asc"
	if s.Desc {
		dir = "desc"
	}
	return fmt.Sprintf("%s%s|ord=%s.%s|pg=%dx%d", KeyPrefix, FilterSignature(f), col, dir, page, pageSize)
}

// SortPrefix returns the key prefix shared by every page and sort of the
// given filter set. Invalidating with this prefix but a different full key
// drops stale-sort entries while leaving unrelated filters alone.
func SortPrefix(f query.Filters) string {
	return KeyPrefix + FilterSignature(f) + "|ord="
}

// escape keeps user-entered text from forging the | and , separators.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\p`)
	s = strings.ReplaceAll(s, ",", `\c`)
	return s
}
