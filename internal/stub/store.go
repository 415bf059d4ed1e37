// Package stub is a self-contained claims backend speaking the same wire
// protocol as the hosted service. It exists for local development and for
// end-to-end tests that need a real HTTP peer.
package stub

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
)

// ErrDuplicateOrderNo is returned when an insert reuses an existing
// order number.
var ErrDuplicateOrderNo = errors.New("stub: duplicate order_no")

// ErrNotFound is returned for operations on a missing record id.
var ErrNotFound = errors.New("stub: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	id               TEXT PRIMARY KEY,
	customer_name    TEXT NOT NULL DEFAULT '',
	customer_contact TEXT NOT NULL DEFAULT '',
	order_no         TEXT NOT NULL UNIQUE,
	tracking_no      TEXT NOT NULL DEFAULT '',
	sku              TEXT NOT NULL DEFAULT '',
	warehouse        TEXT NOT NULL DEFAULT '',
	ship_date        TEXT NOT NULL DEFAULT '',
	claim_type       TEXT NOT NULL DEFAULT 'other',
	description      TEXT NOT NULL DEFAULT '',
	declared_value   REAL NOT NULL DEFAULT 0,
	quantity         INTEGER NOT NULL DEFAULT 0,
	amount           REAL NOT NULL DEFAULT 0,
	currency         TEXT NOT NULL DEFAULT 'USD',
	liability        TEXT NOT NULL DEFAULT '',
	ratio            REAL NOT NULL DEFAULT 0,
	submitted_at     TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	remarks          TEXT NOT NULL DEFAULT '',
	attachments      TEXT NOT NULL DEFAULT '[]',
	updated_at       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_submitted ON claims(submitted_at);
`

// filterColumns whitelists the columns a wire query may reference, with
// their comparison class. Text columns compare case-insensitively.
var filterColumns = map[string]bool{ // true = numeric
	"customer_name": false, "customer_contact": false,
	"order_no": false, "tracking_no": false, "sku": false,
	"warehouse": false, "ship_date": false, "claim_type": false,
	"description": false, "liability": false, "remarks": false,
	"submitted_at": false, "status": false, "currency": false,
	"declared_value": true, "quantity": true, "amount": true, "ratio": true,
}

// Store holds claims in a SQLite table and records a change journal for
// the polling realtime feed.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	version uint64
	journal []journalEntry
}

type journalEntry struct {
	version uint64
	event   api.ChangeEvent
}

// journalCap bounds the change journal; pollers further behind than this
// miss events and should resync.
const journalCap = 256

// OpenStore opens (or creates) the claims table at path. Pass ":memory:"
// for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stub db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() // safe to ignore
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close() // safe to ignore
		return nil, fmt.Errorf("create claims schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:]) // safe to ignore
	return "clm_" + hex.EncodeToString(b[:])
}

const selectCols = `id, customer_name, customer_contact, order_no, tracking_no,
	sku, warehouse, ship_date, claim_type, description, declared_value,
	quantity, amount, currency, liability, ratio, submitted_at, status,
	remarks, attachments, updated_at`

func scanRecord(scan func(...any) error) (*api.ClaimRecord, error) {
	var rec api.ClaimRecord
	var submitted, updated, attachments string
	err := scan(&rec.ID, &rec.CustomerName, &rec.CustomerContact,
		&rec.OrderNo, &rec.TrackingNo, &rec.SKU, &rec.Warehouse,
		&rec.ShipDate, &rec.Type, &rec.Description, &rec.DeclaredValue,
		&rec.Quantity, &rec.Amount, &rec.Currency, &rec.Liability,
		&rec.Ratio, &submitted, &rec.Status, &rec.Remarks,
		&attachments, &updated)
	if err != nil {
		return nil, err
	}
	if submitted != "" {
		rec.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submitted)
	}
	if updated != "" {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	}
	if attachments != "" && attachments != "[]" {
		_ = oj.Unmarshal([]byte(attachments), &rec.Attachments) // safe to ignore
	}
	return &rec, nil
}

// condSQL translates one wire predicate into a WHERE fragment plus its
// bind argument. Unknown columns are rejected rather than guessed at.
func condSQL(c remote.Cond) (string, any, error) {
	numeric, ok := filterColumns[c.Column]
	if !ok {
		return "", nil, fmt.Errorf("unfilterable column %q", c.Column)
	}
	switch c.Op {
	case remote.OpEq:
		if numeric {
			return c.Column + " = ?", c.Value, nil
		}
		return c.Column + " = ? COLLATE NOCASE", c.Value, nil
	case remote.OpILike:
		return c.Column + " LIKE '%' || ? || '%' COLLATE NOCASE", c.Value, nil
	case remote.OpGte:
		return c.Column + " >= ?", c.Value, nil
	case remote.OpLte:
		return c.Column + " <= ?", c.Value, nil
	}
	return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
}

func whereSQL(q *remote.Query) (string, []any, error) {
	var clauses []string
	var args []any
	for _, c := range q.Conds {
		sqlFrag, arg, err := condSQL(c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, sqlFrag)
		args = append(args, arg)
	}
	for _, group := range q.OrGroups {
		parts := make([]string, 0, len(group))
		for _, c := range group {
			sqlFrag, arg, err := condSQL(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sqlFrag)
			args = append(args, arg)
		}
		if len(parts) > 0 {
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
		}
	}
	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Select evaluates q and returns the page rows plus the exact total
// count before offset/limit.
func (s *Store) Select(q *remote.Query) ([]api.ClaimRecord, int, error) {
	where, args, err := whereSQL(q)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM claims"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	stmt := "SELECT " + selectCols + " FROM claims" + where
	if q.Order != nil {
		if _, ok := filterColumns[q.Order.Column]; ok {
			dir := "ASC"
			if q.Order.Desc {
				dir = "DESC"
			}
			stmt += " ORDER BY " + q.Order.Column + " " + dir + ", id " + dir
		}
	}
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	} else if q.Offset > 0 {
		stmt += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select claims: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := []api.ClaimRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate claims: %w", err)
	}
	return out, total, nil
}

// Get fetches one record by id.
func (s *Store) Get(id string) (*api.ClaimRecord, error) {
	row := s.db.QueryRow("SELECT "+selectCols+" FROM claims WHERE id = ?", id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get claim %s: %w", id, err)
	}
	return rec, nil
}

// Insert stores rec, assigning the id and timestamps the backend owns.
func (s *Store) Insert(rec *api.ClaimRecord) (*api.ClaimRecord, error) {
	stored := *rec
	stored.ID = newID()
	now := time.Now().UTC()
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = api.StatusPending
	}
	attachments := "[]"
	if len(stored.Attachments) > 0 {
		b, err := oj.Marshal(stored.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments: %w", err)
		}
		attachments = string(b)
	}

	_, err := s.db.Exec(`INSERT INTO claims (`+selectCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		stored.ID, stored.CustomerName, stored.CustomerContact,
		stored.OrderNo, stored.TrackingNo, stored.SKU, stored.Warehouse,
		stored.ShipDate, stored.Type, stored.Description,
		stored.DeclaredValue, stored.Quantity, stored.Amount,
		stored.Currency, stored.Liability, stored.Ratio,
		stored.SubmittedAt.Format(time.RFC3339Nano), stored.Status,
		stored.Remarks, attachments,
		stored.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrDuplicateOrderNo
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	s.record(api.ChangeEvent{Type: api.EventInsert, New: &stored})
	return &stored, nil
}

// updatableColumns are the fields a PATCH may touch. id, submitted_at and
// updated_at stay backend-owned.
var updatableColumns = map[string]bool{
	"customer_name": true, "customer_contact": true, "order_no": true,
	"tracking_no": true, "sku": true, "warehouse": true, "ship_date": true,
	"claim_type": true, "description": true, "declared_value": true,
	"quantity": true, "amount": true, "currency": true, "liability": true,
	"ratio": true, "status": true, "remarks": true,
}

// Update applies fields to the record with id. When expect is non-zero
// the write only lands if the stored updated_at still equals it; a
// mismatch reports zero rows affected.
func (s *Store) Update(id string, fields map[string]any, expect time.Time) (int, *api.ClaimRecord, error) {
	before, err := s.Get(id)
	if err != nil {
		return 0, nil, err
	}
	if !expect.IsZero() && !before.UpdatedAt.Equal(expect) {
		return 0, nil, nil
	}

	var sets []string
	var args []any
	for col, v := range fields {
		if !updatableColumns[col] {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := s.db.Exec("UPDATE claims SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, nil, ErrDuplicateOrderNo
		}
		return 0, nil, fmt.Errorf("update claim %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	after, err := s.Get(id)
	if err != nil {
		return int(n), nil, err
	}
	s.record(api.ChangeEvent{Type: api.EventUpdate, Old: before, New: after})
	return int(n), after, nil
}

// Delete removes a record by id.
func (s *Store) Delete(id string) error {
	before, err := s.Get(id)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM claims WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete claim %s: %w", id, err)
	}
	s.record(api.ChangeEvent{Type: api.EventDelete, Old: before})
	return nil
}

func (s *Store) record(ev api.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.journal = append(s.journal, journalEntry{version: s.version, event: ev})
	if len(s.journal) > journalCap {
		s.journal = s.journal[len(s.journal)-journalCap:]
	}
}

// Version returns the monotonically increasing change counter.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// EventsSince returns the journaled events after version, plus the
// current version. ok is false when the journal no longer reaches back
// that far and the caller must resync instead.
func (s *Store) EventsSince(version uint64) (events []api.ChangeEvent, current uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version < s.version && (len(s.journal) == 0 || s.journal[0].version > version+1) {
		return nil, s.version, false
	}
	for _, e := range s.journal {
		if e.version > version {
			events = append(events, e.event)
		}
	}
	return events, s.version, true
}
