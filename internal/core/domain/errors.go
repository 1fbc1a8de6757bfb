package domain

import "errors"

var (
	// ErrProcessNotFound means the named process is absent from the
	// supervisor's list. Expected and frequent; returned as data, never
	// allowed to crash a handler.
	ErrProcessNotFound = errors.New("process not found")

	// ErrSupervisorUnavailable means the query/command channel to the
	// external supervisor failed.
	ErrSupervisorUnavailable = errors.New("supervisor unavailable")
)
