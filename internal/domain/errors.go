package domain

import "errors"

var (
	// ErrNotFound a referenced salon, specialist, procedure or appointment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict the requested interval overlaps an active appointment.
	ErrConflict = errors.New("time slot is already taken")
	// ErrPastTime the requested start is before the current instant.
	ErrPastTime = errors.New("start time is in the past")
	// ErrInvalidShift the shift does not describe a usable window (start >= end).
	ErrInvalidShift = errors.New("invalid shift")

	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("appointment was modified concurrently")
	ErrInvalidInput           = errors.New("invalid input")
	ErrLockNotAcquired        = errors.New("lock not acquired")
)
