// Package otp tracks the one-time attendance codes a teacher has issued. The
// backend assigns codes and expiries; this side only keeps a transient active
// list for display and drops each entry the moment its window closes.
package otp

import (
	"errors"
	"strings"
	"time"
)

// Subjects is the known teaching-subject set.
var Subjects = []string{"EMT", "VLSI", "DSA", "CE", "DSP", "MICROPROCESSOR", "NETWORKS"}

// KnownSubject reports whether s names a teaching subject. Matching is
// case-insensitive, the backend normalizes the same way.
func KnownSubject(s string) bool {
	for _, sub := range Subjects {
		if strings.EqualFold(sub, s) {
			return true
		}
	}
	return false
}

var (
	// ErrUnknownSubject rejects an issue request before any network call.
	ErrUnknownSubject = errors.New("select a subject from the known subject list")
	// ErrBadDuration rejects a non-positive validity window locally.
	ErrBadDuration = errors.New("validity must be a positive number of minutes")
	// ErrIssueInFlight prevents a duplicate request while one is pending.
	ErrIssueInFlight = errors.New("a code is already being issued, wait for it to finish")
	// ErrNoTeacher means Issue was called before a teacher logged in.
	ErrNoTeacher = errors.New("no teacher session, log in first")
)

// OTP is a single-use, time-boxed authorization code for one class session.
// Instances are read-only snapshots of what the backend issued.
type OTP struct {
	Code       string
	Subject    string
	IssuedFor  string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// ActiveAt reports whether the code's window covers t. The window is
// half-open: [ValidFrom, ValidUntil).
func (o OTP) ActiveAt(t time.Time) bool {
	return !t.Before(o.ValidFrom) && t.Before(o.ValidUntil)
}
