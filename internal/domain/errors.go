package domain

import "errors"

// Command-level failures returned to callers. The presentation layer is
// expected to match these with errors.Is and render them, not crash.
var (
	ErrRoomUnavailable    = errors.New("room unavailable")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrNotInRoom          = errors.New("not in room")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrEmptyMessage       = errors.New("empty message")

	// ErrInvariantViolation means session state can no longer be trusted.
	// It should be unreachable given correct command validation; a session
	// that surfaces it is forced to the left phase and must be rejoined.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Validation failures for constructing domain values.
var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrMessageTooLong     = errors.New("message too long")
	ErrUnknownDevice      = errors.New("unknown device")
	ErrTitleEmpty         = errors.New("meeting title empty")
	ErrTitleTooLong       = errors.New("meeting title too long")
	ErrStartInPast        = errors.New("meeting start in the past")
)
