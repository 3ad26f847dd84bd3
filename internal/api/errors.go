package api

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned for any 401. The active session has already
// been cleared by the time callers see it.
var ErrSessionExpired = errors.New("session expired, please log in again")

// ErrNotFound covers 404 answers, e.g. an unknown or never-issued code.
var ErrNotFound = errors.New("not found")

const genericMessage = "request failed, please try again"

// Error is a backend validation or business rejection. Message is the
// backend's own wording when it provided any, so invalid code, expired code
// and duplicate submission each read differently to the user.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return genericMessage
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Status == 404 {
		return ErrNotFound
	}
	return nil
}

func newAPIError(status int, detail string) error {
	if detail == "" {
		detail = genericMessage
	}
	return &Error{Status: status, Message: detail}
}

func transportError(err error) error {
	return fmt.Errorf("attendance backend unreachable: %w", err)
}
