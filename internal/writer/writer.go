// Package writer applies claim edits with optimistic-concurrency conflict
// detection: re-read the authoritative record, three-way compare against
// the edit-open snapshot, and only write once divergent fields are
// resolved by the user.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/cache"
	"github.com/overseasops/claimgrid/internal/remote"
)

// ErrGone is returned when the record no longer exists on the backend.
var ErrGone = errors.New("writer: record no longer exists")

// ErrLateConflict is a conflict discovered after the clean check: another
// writer updated the record between re-fetch and write (zero rows
// affected). Callers report it and refetch rather than silently succeed.
var ErrLateConflict = errors.New("writer: record changed during write")

// ErrAborted means the user cancelled conflict resolution. No side
// effects occurred.
var ErrAborted = errors.New("writer: update aborted by user")

// FieldConflict is one divergent field presented for manual resolution.
type FieldConflict struct {
	Field    string
	Original any // value at edit-open time
	Current  any // value on the backend now
	Proposed any // the user's new value
}

// ConflictError carries every conflicting field at once; conflicts are
// never auto-resolved.
type ConflictError struct {
	Fields []FieldConflict
}

func (e *ConflictError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "writer: conflicting fields: " + strings.Join(names, ", ")
}

// Resolver decides a conflicted update: it returns the field set to apply
// and whether to proceed at all.
type Resolver func(*ConflictError) (map[string]any, bool)

// Backend is the slice of the remote client the writer needs.
type Backend interface {
	Get(ctx context.Context, id string) (*api.ClaimRecord, error)
	Update(ctx context.Context, id string, fields map[string]any, expectUpdatedAt time.Time) (int, error)
}

// conflictFields is the fixed set of conflict-sensitive business fields.
// Deliberately narrow: the fields a back office actually fights over.
// Mechanical fields (timestamps, attachments) are last-writer-wins.
var conflictFields = map[string]func(*api.ClaimRecord) any{
	"status":         func(r *api.ClaimRecord) any { return string(r.Status) },
	"liability":      func(r *api.ClaimRecord) any { return r.Liability },
	"ratio":          func(r *api.ClaimRecord) any { return r.Ratio },
	"amount":         func(r *api.ClaimRecord) any { return r.Amount },
	"declared_value": func(r *api.ClaimRecord) any { return r.DeclaredValue },
	"remarks":        func(r *api.ClaimRecord) any { return r.Remarks },
}

// Writer applies updates against a backend and keeps the query cache
// coherent afterwards. queries may be nil (no cache to invalidate).
type Writer struct {
	backend Backend
	queries *cache.Cache
}

// New builds a writer.
func New(backend Backend, queries *cache.Cache) *Writer {
	return &Writer{backend: backend, queries: queries}
}

// Update applies newFields to the record with id. snapshot is the
// authoritative record as captured when the edit form opened.
//
// A field conflicts when the backend value moved away from the snapshot
// AND the user's value differs from the backend's: both sides changed it
// independently. A user who happens to pick the backend's new value is not
// in conflict. Conflicts go through resolve; a nil resolver surfaces the
// ConflictError directly.
func (w *Writer) Update(ctx context.Context, id string, newFields map[string]any, snapshot *api.ClaimRecord, resolve Resolver) (*api.ClaimRecord, error) {
	current, err := w.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, ErrGone
		}
		return nil, fmt.Errorf("re-fetch record %s: %w", id, err)
	}

	if conflict := detectConflicts(snapshot, current, newFields); conflict != nil {
		if resolve == nil {
			return nil, conflict
		}
		resolved, ok := resolve(conflict)
		if !ok {
			return nil, ErrAborted
		}
		newFields = resolved
	}

	affected, err := w.backend.Update(ctx, id, newFields, current.UpdatedAt)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, ErrGone
		}
		return nil, fmt.Errorf("update record %s: %w", id, err)
	}
	if affected == 0 {
		return nil, ErrLateConflict
	}

	updated := applyFields(current, newFields)
	w.invalidateStale(current, updated)
	return updated, nil
}

// detectConflicts runs the three-way compare over the fixed field set.
// Fields the user did not touch never conflict.
func detectConflicts(snapshot, current *api.ClaimRecord, newFields map[string]any) *ConflictError {
	var out []FieldConflict
	for field, extract := range conflictFields {
		proposed, touched := newFields[field]
		if !touched {
			continue
		}
		snapVal := extract(snapshot)
		curVal := extract(current)
		if equalValue(curVal, snapVal) {
			continue // backend unchanged since snapshot
		}
		if equalValue(proposed, curVal) {
			continue // user chose the backend's new value
		}
		out = append(out, FieldConflict{
			Field:    field,
			Original: snapVal,
			Current:  curVal,
			Proposed: proposed,
		})
	}
	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return &ConflictError{Fields: out}
}

// equalValue compares loosely typed field values: edit forms and JSON
// decoding hand back strings and float64s, the record carries typed
// fields.
func equalValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// applyFields returns a copy of rec with the written fields folded in.
// Every field the backend accepts in a patch must be covered here, or the
// caller's local copy (and the list row patched from it) drifts from the
// stored record.
func applyFields(rec *api.ClaimRecord, fields map[string]any) *api.ClaimRecord {
	out := *rec
	for field, v := range fields {
		switch field {
		case "status":
			out.Status = api.Status(fmt.Sprint(v))
		case "claim_type":
			out.Type = api.ClaimType(fmt.Sprint(v))
		case "customer_name":
			out.CustomerName = fmt.Sprint(v)
		case "customer_contact":
			out.CustomerContact = fmt.Sprint(v)
		case "order_no":
			out.OrderNo = fmt.Sprint(v)
		case "tracking_no":
			out.TrackingNo = fmt.Sprint(v)
		case "sku":
			out.SKU = fmt.Sprint(v)
		case "warehouse":
			out.Warehouse = fmt.Sprint(v)
		case "ship_date":
			out.ShipDate = fmt.Sprint(v)
		case "currency":
			out.Currency = fmt.Sprint(v)
		case "liability":
			out.Liability = fmt.Sprint(v)
		case "remarks":
			out.Remarks = fmt.Sprint(v)
		case "description":
			out.Description = fmt.Sprint(v)
		case "quantity":
			if f, ok := toFloat(v); ok {
				out.Quantity = int(f)
			}
		case "ratio":
			if f, ok := toFloat(v); ok {
				out.Ratio = f
			}
		case "amount":
			if f, ok := toFloat(v); ok {
				out.Amount = f
			}
		case "declared_value":
			if f, ok := toFloat(v); ok {
				out.DeclaredValue = f
			}
		}
	}
	out.UpdatedAt = time.Now()
	return &out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// invalidateStale drops query-cache entries whose filter dimension the
// write may have moved. A status change is targeted: only entries
// filtering on the old status, the new status, or no status at all are
// touched. Any other change clears the query namespace: every filtered
// view may include the row.
func (w *Writer) invalidateStale(before, after *api.ClaimRecord) {
	if w.queries == nil {
		return
	}
	if before.Status != after.Status {
		oldTag := "st=" + string(before.Status)
		newTag := "st=" + string(after.Status)
		allTag := "st=" + string(api.StatusAll)
		w.queries.Invalidate(func(key string) bool {
			return strings.Contains(key, oldTag) ||
				strings.Contains(key, newTag) ||
				strings.Contains(key, allTag)
		})
		return
	}
	w.queries.InvalidatePrefix(cache.KeyPrefix)
}
