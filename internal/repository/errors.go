package repository

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrAlreadyClosed   = errors.New("session already closed")
	// ErrIntegrity marks an invariant found already broken at read time
	// (duplicate open sessions, negative counters). The operation aborts;
	// nothing tries to repair the data.
	ErrIntegrity = errors.New("data integrity fault")
)
