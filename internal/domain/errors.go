package domain

import "errors"

var (
	// ErrInvalidAmount is returned when a log command carries a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrInvalidUser is returned when a log command carries a non-positive user id.
	ErrInvalidUser = errors.New("user id must be a positive integer")
	// ErrUnknownExercise is returned when an alias matches no catalog exercise.
	ErrUnknownExercise = errors.New("unknown exercise alias")
	// ErrStoreUnavailable wraps transient connectivity/timeout failures from the store.
	ErrStoreUnavailable = errors.New("progress store unavailable")
	// ErrCorruptState wraps unexpected store responses. Never retried, never repaired.
	ErrCorruptState = errors.New("corrupt progress record")
	// ErrRecordNotFound is returned by reads of a never-written (user, exercise) pair.
	// Callers normalize it to a zero-state record.
	ErrRecordNotFound = errors.New("progress record not found")
	// ErrUserNotFound is returned when no profile has been stored for a user.
	ErrUserNotFound = errors.New("user not found")
)
