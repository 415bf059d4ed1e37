package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
	"github.com/overseasops/claimgrid/internal/state"
	"github.com/overseasops/claimgrid/internal/writer"
)

// EditSession is one open edit form. It pins the authoritative record as
// of form open (the conflict baseline) and tracks dirtiness through the
// view/edit state machine, so navigation guards and cancel-confirmation
// fall out of explicit transitions instead of scattered flags.
type EditSession struct {
	engine   *Engine
	fsm      *state.Machine
	snapshot *api.ClaimRecord
	fields   map[string]any
}

// OpenEdit re-fetches the record by id and opens an edit session on it.
// The fresh read is deliberate: the list row may be minutes old.
func (e *Engine) OpenEdit(ctx context.Context, id string, confirmDiscard func() bool) (*EditSession, error) {
	if !e.perms.CanEdit() {
		return nil, ErrPermission
	}
	rec, err := e.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, writer.ErrGone
		}
		return nil, fmt.Errorf("open edit %s: %w", id, err)
	}

	fsm := state.NewMachine()
	fsm.Confirm = confirmDiscard
	if err := fsm.StartEdit(); err != nil {
		return nil, err
	}
	return &EditSession{
		engine:   e,
		fsm:      fsm,
		snapshot: rec,
		fields:   make(map[string]any),
	}, nil
}

// Record returns the edit-open snapshot.
func (s *EditSession) Record() *api.ClaimRecord { return s.snapshot }

// Mode reports the current edit mode.
func (s *EditSession) Mode() state.ViewMode { return s.fsm.Mode() }

// CanNavigate reports whether leaving the form needs no confirmation.
func (s *EditSession) CanNavigate() bool { return s.fsm.CanNavigate() }

// SetField stages one field change and marks the session dirty.
func (s *EditSession) SetField(name string, value any) error {
	if err := s.fsm.MarkDirty(); err != nil {
		return err
	}
	s.fields[name] = value
	return nil
}

// Save applies the staged fields through the conflict-aware writer.
// On success the loaded list row is patched in place and the session
// returns to viewing mode. ErrLateConflict and ConflictError pass through
// for the caller to surface; the session stays open and dirty.
func (s *EditSession) Save(ctx context.Context, resolve writer.Resolver) (*api.ClaimRecord, error) {
	if len(s.fields) == 0 {
		return s.snapshot, s.fsm.FinishEdit()
	}
	if err := validateFields(s.fields); err != nil {
		return nil, err
	}
	if no, ok := s.fields["order_no"].(string); ok {
		if dup := s.engine.list.FindByOrderNo(no, s.snapshot.ID); dup != nil {
			return nil, &ValidationError{Field: "order_no",
				Msg: fmt.Sprintf("order %s already has claim %s", no, dup.ID)}
		}
	}

	updated, err := s.engine.writer.Update(ctx, s.snapshot.ID, s.fields, s.snapshot, resolve)
	if err != nil {
		return nil, err
	}
	s.engine.list.UpdateRow(updated)
	s.snapshot = updated
	s.fields = make(map[string]any)
	return updated, s.fsm.FinishEdit()
}

// Cancel abandons the edit. A dirty session asks the confirm callback;
// declined cancels keep the session open. No fields reach the backend
// either way.
func (s *EditSession) Cancel() (bool, error) {
	ok, err := s.fsm.CancelEdit()
	if err != nil {
		return false, err
	}
	if ok {
		s.fields = make(map[string]any)
	}
	return ok, nil
}
