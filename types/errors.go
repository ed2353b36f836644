package types

import "fmt"

// The error kinds below are expected, recoverable-by-the-caller conditions.
// They are returned as typed values so the HTTP layer can discriminate with
// errors.As and render user-facing messages. Anything else bubbling up from
// storage is treated as a generic failure for the current request only.

type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized: %s", e.Reason)
}

type SelfActionError struct{}

func (e *SelfActionError) Error() string {
	return "you cannot moderate yourself"
}

type NotFoundError struct {
	Kind string // "room", "action", ...
	Id   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Id)
}

type BannedError struct {
	RoomSlug string
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("banned from room %q", e.RoomSlug)
}

type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfterSeconds)
}
