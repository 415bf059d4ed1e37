package remote

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record id does not exist on the backend.
var ErrNotFound = errors.New("remote: record not found")

// ErrCanceled marks a request aborted by its own cancellation, as opposed
// to a transport or server failure. Callers treat it as a silent supersede.
var ErrCanceled = errors.New("remote: request canceled")

// IsCanceled reports whether err stems from context cancellation rather
// than a real failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
