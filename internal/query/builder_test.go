package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
)

func TestBuildStatusFilter(t *testing.T) {
	q := Build(Filters{Status: api.StatusPending}, DefaultSort(), 1, 20)
	require.Len(t, q.Conds, 1)
	assert.Equal(t, remote.Cond{Column: "status", Op: remote.OpEq, Value: "pending"}, q.Conds[0])
}

func TestBuildStatusAllOmitsPredicate(t *testing.T) {
	for _, status := range []api.Status{api.StatusAll, ""} {
		q := Build(Filters{Status: status}, DefaultSort(), 1, 20)
		assert.Empty(t, q.Conds, "status %q", status)
	}
}

func TestBuildFuzzySearchCoversAllFields(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll, Search: "ORD-1", SearchMode: Fuzzy}, DefaultSort(), 1, 20)
	require.Len(t, q.OrGroups, 1)

	group := q.OrGroups[0]
	// non-numeric term: the numeric columns drop out
	assert.Len(t, group, len(searchableFields)-2)
	for _, c := range group {
		assert.Equal(t, remote.OpILike, c.Op)
		assert.Equal(t, "ORD-1", c.Value)
		assert.False(t, numericFields[c.Column], "numeric column %s must not ilike", c.Column)
	}
}

func TestBuildExactSearchUsesEquality(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll, Search: "ORD-000123", SearchMode: Exact}, DefaultSort(), 1, 20)
	require.Len(t, q.OrGroups, 1)
	for _, c := range q.OrGroups[0] {
		assert.Equal(t, remote.OpEq, c.Op)
	}
}

func TestBuildNumericSearchNormalizes(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll, Search: "12.50", SearchMode: Fuzzy}, DefaultSort(), 1, 20)
	require.Len(t, q.OrGroups, 1)

	byCol := map[string]remote.Cond{}
	for _, c := range q.OrGroups[0] {
		byCol[c.Column] = c
	}
	require.Contains(t, byCol, "amount")
	assert.Equal(t, remote.OpEq, byCol["amount"].Op)
	assert.Equal(t, "12.5", byCol["amount"].Value)
}

func TestBuildSingleFieldSearch(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll, Search: "TRK9", SearchField: "tracking_no", SearchMode: Fuzzy}, DefaultSort(), 1, 20)
	require.Len(t, q.OrGroups, 1)
	require.Len(t, q.OrGroups[0], 1)
	assert.Equal(t, "tracking_no", q.OrGroups[0][0].Column)
}

func TestBuildNumericOnlySearchNoMatchableField(t *testing.T) {
	// non-numeric term restricted to a numeric field: no predicate at all
	q := Build(Filters{Status: api.StatusAll, Search: "abc", SearchField: "amount"}, DefaultSort(), 1, 20)
	assert.Empty(t, q.OrGroups)
}

func TestBuildAdvancedPredicates(t *testing.T) {
	f := Filters{
		Status: api.StatusAll,
		Advanced: Advanced{
			OrderNo:       "ORD",
			Warehouse:     "EU-DE-1",
			ClaimType:     api.TypeDamaged,
			ShipDateFrom:  "2026-01-01",
			ShipDateTo:    "2026-01-31",
			SubmittedFrom: "2026-02-01",
			SubmittedTo:   "2026-02-28",
		},
	}
	q := Build(f, DefaultSort(), 1, 20)

	want := []remote.Cond{
		{Column: "order_no", Op: remote.OpILike, Value: "ORD"},
		{Column: "warehouse", Op: remote.OpEq, Value: "EU-DE-1"},
		{Column: "claim_type", Op: remote.OpEq, Value: "damaged"},
		{Column: "ship_date", Op: remote.OpGte, Value: "2026-01-01"},
		{Column: "ship_date", Op: remote.OpLte, Value: "2026-01-31"},
		{Column: "submitted_at", Op: remote.OpGte, Value: "2026-02-01T00:00:00Z"},
		{Column: "submitted_at", Op: remote.OpLte, Value: "2026-02-28T23:59:59Z"},
	}
	if diff := cmp.Diff(want, q.Conds); diff != "" {
		t.Errorf("advanced predicates mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHalfOpenDateRange(t *testing.T) {
	f := Filters{Status: api.StatusAll, Advanced: Advanced{SubmittedFrom: "2026-03-01"}}
	q := Build(f, DefaultSort(), 1, 20)
	require.Len(t, q.Conds, 1)
	assert.Equal(t, remote.OpGte, q.Conds[0].Op)
	assert.Equal(t, "2026-03-01T00:00:00Z", q.Conds[0].Value)
}

func TestBuildPagination(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll}, DefaultSort(), 3, 50)
	assert.Equal(t, 100, q.Offset)
	assert.Equal(t, 50, q.Limit)

	q = Build(Filters{Status: api.StatusAll}, DefaultSort(), 0, 50)
	assert.Equal(t, 0, q.Offset, "page clamps to 1")
}

func TestBuildDefaultSort(t *testing.T) {
	q := Build(Filters{Status: api.StatusAll}, Sort{}, 1, 20)
	require.NotNil(t, q.Order)
	assert.Equal(t, "submitted_at", q.Order.Column)
}

func TestBuildDeterministicEncoding(t *testing.T) {
	f := Filters{Status: api.StatusApproved, Search: "acme", SearchMode: Fuzzy,
		Advanced: Advanced{Warehouse: "US-EAST-1"}}
	a := Build(f, DefaultSort(), 2, 20).Encode().Encode()
	b := Build(f, DefaultSort(), 2, 20).Encode().Encode()
	assert.Equal(t, a, b)
}
