package state

import (
	"fmt"
	"sync"
)

// ViewMode is a state of the view/edit machine.
type ViewMode int

const (
	// Viewing: browsing the list, no edit open.
	Viewing ViewMode = iota
	// EditingClean: an edit form is open with no unsaved changes.
	EditingClean
	// EditingDirty: the open edit form has unsaved changes.
	EditingDirty
)

func (m ViewMode) String() string {
	switch m {
	case Viewing:
		return "viewing"
	case EditingClean:
		return "editing-clean"
	case EditingDirty:
		return "editing-dirty"
	default:
		return fmt.Sprintf("viewmode(%d)", int(m))
	}
}

// ErrIllegalTransition is returned for transitions the machine forbids.
type ErrIllegalTransition struct {
	From, To ViewMode
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal view transition %s -> %s", e.From, e.To)
}

// Machine is the explicit view/edit state machine. Leaving a dirty edit
// goes through the pluggable Confirm hook instead of inline dialog code;
// a nil hook refuses to discard dirty state.
type Machine struct {
	mu   sync.Mutex
	mode ViewMode

	// Confirm decides whether dirty changes may be discarded.
	Confirm func() bool
}

// NewMachine starts in Viewing.
func NewMachine() *Machine {
	return &Machine{mode: Viewing}
}

// Mode returns the current state.
func (m *Machine) Mode() ViewMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// StartEdit opens an edit form. Only legal from Viewing.
func (m *Machine) StartEdit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != Viewing {
		return &ErrIllegalTransition{From: m.mode, To: EditingClean}
	}
	m.mode = EditingClean
	return nil
}

// MarkDirty records the first unsaved change. A dirty form stays dirty.
func (m *Machine) MarkDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case EditingClean, EditingDirty:
		m.mode = EditingDirty
		return nil
	default:
		return &ErrIllegalTransition{From: m.mode, To: EditingDirty}
	}
}

// FinishEdit closes the form after a successful save.
func (m *Machine) FinishEdit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case EditingClean, EditingDirty:
		m.mode = Viewing
		return nil
	default:
		return &ErrIllegalTransition{From: m.mode, To: Viewing}
	}
}

// CancelEdit abandons the form. From EditingDirty the Confirm hook guards
// the transition; false means the user kept editing and the machine stays
// put. Returns whether the cancel happened.
func (m *Machine) CancelEdit() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case EditingClean:
		m.mode = Viewing
		return true, nil
	case EditingDirty:
		if m.Confirm == nil || !m.Confirm() {
			return false, nil
		}
		m.mode = Viewing
		return true, nil
	default:
		return false, &ErrIllegalTransition{From: m.mode, To: Viewing}
	}
}

// CanNavigate reports whether leaving the current view is allowed without
// confirmation. Dirty edits pin the user to the form.
func (m *Machine) CanNavigate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode != EditingDirty
}
