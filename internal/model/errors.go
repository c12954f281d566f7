package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrStaleTransition is returned when a status change is requested on a
	// match that already left the pending state. No state is mutated.
	ErrStaleTransition = errors.New("stale status transition")

	// ErrScopePopulation is the only run-fatal condition: the candidate
	// population for a scope could not be enumerated at all.
	ErrScopePopulation = errors.New("scope population unavailable")
)
