package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEncodeRoundTrip(t *testing.T) {
	q := (&Query{}).
		Eq("status", "pending").
		Match("customer_name", "acme, inc.").
		Range("submitted_at", "2026-01-01T00:00:00Z", "").
		Any(Cond{Column: "order_no", Op: OpILike, Value: "x"},
			Cond{Column: "sku", Op: OpILike, Value: "x"}).
		OrderBy("amount", true).
		Page(3, 20)

	v := q.Encode()

	filters := v["filter"]
	require.Len(t, filters, 3)
	for _, f := range filters {
		c, err := ParseCond(f)
		require.NoError(t, err)
		assert.NotEmpty(t, c.Column)
	}

	// the escaped comma in the value survives
	c, err := ParseCond(filters[1])
	require.NoError(t, err)
	assert.Equal(t, "acme, inc.", c.Value)

	group, err := ParseOrGroup(v.Get("or"))
	require.NoError(t, err)
	require.Len(t, group, 2)
	assert.Equal(t, "order_no", group[0].Column)

	assert.Equal(t, "amount.desc", v.Get("order"))
	assert.Equal(t, "40", v.Get("offset"))
	assert.Equal(t, "20", v.Get("limit"))
}

func TestParseCondRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "status", "status.pending", "status.between.1.2x%zz"} {
		_, err := ParseCond(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestClientSelect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/claims", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "status.eq.pending", r.URL.Query().Get("filter"))
		w.Header().Set(TotalCountHeader, "123")
		_, _ = w.Write([]byte(`[{"id":"clm_1","order_no":"ORD-1","status":"pending"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "claims", "secret")
	rows, total, err := c.Select(context.Background(), (&Query{}).Eq("status", "pending"))
	require.NoError(t, err)
	assert.Equal(t, 123, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "clm_1", rows[0].ID)
}

func TestClientSelectMissingCountHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "claims", "")
	_, total, err := c.Select(context.Background(), &Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "falls back to page length")
}

func TestClientGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "claims", "")
	_, err := c.Get(context.Background(), "clm_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientUpdatePreconditionFailed(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, stamp.Format(time.RFC3339Nano), r.Header.Get("If-Unmodified-Since"))
		http.Error(w, "stale", http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "claims", "")
	n, err := c.Update(context.Background(), "clm_1", map[string]any{"status": "approved"}, stamp)
	require.NoError(t, err, "412 is a defined outcome, not a transport error")
	assert.Equal(t, 0, n)
}

func TestClientUpdateRowsAffected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows_affected":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "claims", "")
	n, err := c.Update(context.Background(), "clm_1", map[string]any{"status": "approved"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClientCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := NewClient(srv.URL, "claims", "")
	_, _, err := c.Select(ctx, &Query{})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}
