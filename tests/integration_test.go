package tests

import (
	"bytes"
	"context"
	"encoding/csv"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/app"
	"github.com/overseasops/claimgrid/internal/config"
	"github.com/overseasops/claimgrid/internal/query"
	"github.com/overseasops/claimgrid/internal/remote"
	"github.com/overseasops/claimgrid/internal/stub"
	"github.com/overseasops/claimgrid/internal/writer"
)

// testFixture runs the full stack: a seeded sqlite-backed stub server
// behind httptest, a real HTTP client, and an engine with its state
// directory under t.TempDir.
type testFixture struct {
	store  *stub.Store
	server *httptest.Server
	client *remote.Client
	engine *app.Engine
}

func newFixture(t *testing.T, role api.Role, seed int) *testFixture {
	t.Helper()

	store, err := stub.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, stub.Seed(store, seed, rand.New(rand.NewSource(7))))

	srv := httptest.NewServer(stub.NewServer(store, "claims").Router())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.StatePath = t.TempDir()
	cfg.Remote.BaseURL = srv.URL
	client := remote.NewClient(srv.URL, "claims", "")

	engine, err := app.NewEngine(cfg, role, app.EngineOptions{Backend: client})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testFixture{store: store, server: srv, client: client, engine: engine}
}

func TestLoadSearchSortPage(t *testing.T) {
	fx := newFixture(t, api.RoleOperator, 120)
	ctx := context.Background()
	e := fx.engine

	require.NoError(t, e.Load(ctx))
	rows, total := e.List().Rows()
	assert.Len(t, rows, 20)
	assert.Equal(t, 120, total)

	// narrow to one status
	require.NoError(t, e.Search(ctx, query.Filters{Status: api.StatusPending}))
	_, filtered := e.List().Rows()
	assert.Less(t, filtered, total)
	rows, _ = e.List().Rows()
	for _, r := range rows {
		assert.Equal(t, api.StatusPending, r.Status)
	}

	// sort by amount descending, server side
	require.NoError(t, e.Sort(ctx, "amount", true))
	rows, _ = e.List().Rows()
	for i := 1; i < len(rows); i++ {
		assert.GreaterOrEqual(t, rows[i-1].Amount, rows[i].Amount)
	}

	// page 2 continues the same ordering without overlap
	firstPage := append([]api.ClaimRecord(nil), rows...)
	require.NoError(t, e.GoToPage(ctx, 2))
	rows, _ = e.List().Rows()
	if len(rows) > 0 && len(firstPage) > 0 {
		assert.GreaterOrEqual(t, firstPage[len(firstPage)-1].Amount, rows[0].Amount)
		assert.NotEqual(t, firstPage[0].ID, rows[0].ID)
	}
}

func TestFuzzySearchOverHTTP(t *testing.T) {
	fx := newFixture(t, api.RoleViewer, 0)
	ctx := context.Background()

	for _, name := range []string{"Harbor Freight Co", "Blue Harbor Ltd", "Northwind"} {
		_, err := fx.store.Insert(&api.ClaimRecord{
			OrderNo: "ORD-" + name[:4], CustomerName: name,
			Type: api.TypeLost, Status: api.StatusPending, Amount: 10,
		})
		require.NoError(t, err)
	}

	require.NoError(t, fx.engine.Search(ctx, query.Filters{Search: "harbor"}))
	rows, total := fx.engine.List().Rows()
	assert.Equal(t, 2, total)
	for _, r := range rows {
		assert.Contains(t, r.CustomerName, "Harbor")
	}
}

func TestRepeatQueryServedFromCache(t *testing.T) {
	fx := newFixture(t, api.RoleViewer, 30)
	ctx := context.Background()
	e := fx.engine

	require.NoError(t, e.Load(ctx))
	require.NoError(t, e.GoToPage(ctx, 2))
	require.NoError(t, e.GoToPage(ctx, 1))

	stats := e.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits, "returning to page 1 must not refetch")
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestOptimisticUpdateConflict(t *testing.T) {
	fx := newFixture(t, api.RoleOperator, 10)
	ctx := context.Background()
	e := fx.engine
	require.NoError(t, e.Load(ctx))
	rows, _ := e.List().Rows()
	target := rows[0]

	sess, err := e.OpenEdit(ctx, target.ID, nil)
	require.NoError(t, err)
	require.NoError(t, sess.SetField("status", string(api.StatusApproved)))

	// someone else moves the same field while the form is open
	_, _, err = fx.store.Update(target.ID, map[string]any{"status": string(api.StatusRejected)}, time.Time{})
	require.NoError(t, err)

	_, err = sess.Save(ctx, nil)
	var conflict *writer.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Fields, 1)
	assert.Equal(t, "status", conflict.Fields[0].Field)
	assert.Equal(t, string(api.StatusRejected), conflict.Fields[0].Current)

	// resolver keeps ours; the write goes through against the fresh stamp
	updated, err := sess.Save(ctx, func(c *writer.ConflictError) (map[string]any, bool) {
		return map[string]any{"status": string(api.StatusApproved)}, true
	})
	require.NoError(t, err)
	assert.Equal(t, api.StatusApproved, updated.Status)

	stored, err := fx.store.Get(target.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusApproved, stored.Status)
}

func TestUpdateInvalidatesStatusViews(t *testing.T) {
	fx := newFixture(t, api.RoleOperator, 40)
	ctx := context.Background()
	e := fx.engine

	require.NoError(t, e.Search(ctx, query.Filters{Status: api.StatusPending}))
	rows, before := e.List().Rows()
	require.NotEmpty(t, rows)
	target := rows[0]

	sess, err := e.OpenEdit(ctx, target.ID, nil)
	require.NoError(t, err)
	require.NoError(t, sess.SetField("status", string(api.StatusPaid)))
	_, err = sess.Save(ctx, nil)
	require.NoError(t, err)

	// the pending view was dropped from cache, so this refetch sees the move
	require.NoError(t, e.Search(ctx, query.Filters{Status: api.StatusPending}))
	_, after := e.List().Rows()
	assert.Equal(t, before-1, after)
}

func TestCreateAndDeleteRoundTrip(t *testing.T) {
	fx := newFixture(t, api.RoleAdmin, 5)
	ctx := context.Background()
	e := fx.engine
	require.NoError(t, e.Load(ctx))

	created, err := e.Create(ctx, &api.ClaimRecord{
		OrderNo:      "ORD-NEW-001",
		CustomerName: "Fresh Customer",
		Type:         api.TypeDamaged,
		Amount:       123.45,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	_, total := e.List().Rows()
	assert.Equal(t, 6, total)

	// duplicate order numbers are rejected by the unique index
	_, err = fx.client.Insert(ctx, &api.ClaimRecord{
		OrderNo: "ORD-NEW-001", CustomerName: "X", Type: api.TypeLost, Amount: 1,
	})
	assert.Error(t, err)

	require.NoError(t, e.Delete(ctx, created.ID))
	_, total = e.List().Rows()
	assert.Equal(t, 5, total)
}

func TestExportDrainsFilteredSet(t *testing.T) {
	fx := newFixture(t, api.RoleOperator, 230)
	ctx := context.Background()
	e := fx.engine
	require.NoError(t, e.Load(ctx))

	var buf bytes.Buffer
	require.NoError(t, e.Export(ctx, &buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 231, "header plus all rows across export pages")
}

func TestRealtimeEventsRefreshList(t *testing.T) {
	store, err := stub.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, stub.Seed(store, 10, rand.New(rand.NewSource(7))))

	srv := httptest.NewServer(stub.NewServer(store, "claims").Router())
	t.Cleanup(srv.Close)

	src := stub.NewPollingSource(store, 20*time.Millisecond)
	t.Cleanup(src.Close)

	cfg := config.Default()
	cfg.StatePath = t.TempDir()
	engine, err := app.NewEngine(cfg, api.RoleViewer, app.EngineOptions{
		Backend:  remote.NewClient(srv.URL, "claims", ""),
		Realtime: src,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	require.NoError(t, engine.Load(context.Background()))
	_, total := engine.List().Rows()
	require.Equal(t, 10, total)

	_, err = store.Insert(&api.ClaimRecord{
		OrderNo: "ORD-RT-001", CustomerName: "Realtime Co",
		Type: api.TypeDelay, Status: api.StatusPending, Amount: 5,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, total := engine.List().Rows()
		return total == 11
	}, 5*time.Second, 25*time.Millisecond, "change event should refresh the list")
}
