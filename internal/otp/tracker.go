package otp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/clock"
	"attendclient/internal/metrics"
)

// Issuer is the slice of the backend the tracker needs.
type Issuer interface {
	GenerateOTP(ctx context.Context, employeeID, subject string, durationMinutes int) (api.IssuedOTP, error)
	ListOTPs(ctx context.Context, employeeID string) ([]api.OTPInfo, error)
}

// Tracker is the teacher-side active list: an expiring set of issued codes.
// Each inserted code schedules its own removal at ValidUntil on the injected
// clock; no server round trip and no manual refresh is involved in expiry.
type Tracker struct {
	backend Issuer
	clk     clock.Clock
	log     *zap.Logger

	mu         sync.Mutex
	employeeID string
	entries    map[string]*entry

	issuing atomic.Bool
}

type entry struct {
	otp   OTP
	timer clock.Timer
}

// NewTracker builds an empty tracker. Bind must be called with the logged-in
// teacher before Issue or Refresh.
func NewTracker(backend Issuer, clk clock.Clock, log *zap.Logger) *Tracker {
	return &Tracker{
		backend: backend,
		clk:     clk,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// Bind attaches the tracker to a teacher identity, dropping any state left
// from a previous session.
func (t *Tracker) Bind(employeeID string) {
	t.Reset()
	t.mu.Lock()
	t.employeeID = employeeID
	t.mu.Unlock()
}

// Issue requests a new code for subject, valid for durationMinutes. Local
// validation runs first; on backend failure the active list is untouched and
// the failure reason is returned for display. At most one issue request is in
// flight at a time.
func (t *Tracker) Issue(ctx context.Context, subject string, durationMinutes int) (OTP, error) {
	if subject == "" || !KnownSubject(subject) {
		return OTP{}, ErrUnknownSubject
	}
	if durationMinutes <= 0 {
		return OTP{}, ErrBadDuration
	}

	t.mu.Lock()
	employeeID := t.employeeID
	t.mu.Unlock()
	if employeeID == "" {
		return OTP{}, ErrNoTeacher
	}

	if !t.issuing.CompareAndSwap(false, true) {
		return OTP{}, ErrIssueInFlight
	}
	defer t.issuing.Store(false)

	issued, err := t.backend.GenerateOTP(ctx, employeeID, subject, durationMinutes)
	if err != nil {
		return OTP{}, fmt.Errorf("issue code: %w", err)
	}

	o := OTP{
		Code:       issued.Code,
		Subject:    issued.Subject,
		IssuedFor:  employeeID,
		ValidFrom:  t.clk.Now(),
		ValidUntil: issued.ValidUntil.Time,
	}
	t.Insert(o)
	metrics.CodesIssued.Inc()
	t.log.Info("code issued",
		zap.String("subject", o.Subject),
		zap.Time("valid_until", o.ValidUntil))
	return o, nil
}

// Insert adds a cached copy of an issued code and schedules its removal at
// exactly ValidUntil. Codes already past their window are ignored.
func (t *Tracker) Insert(o OTP) {
	now := t.clk.Now()
	if !now.Before(o.ValidUntil) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.entries[o.Code]; ok {
		prev.timer.Stop()
	}
	code := o.Code
	t.entries[code] = &entry{
		otp:   o,
		timer: t.clk.AfterFunc(o.ValidUntil.Sub(now), func() { t.expire(code) }),
	}
}

// expire is the scheduled removal: silent housekeeping, keyed by code so
// concurrent firings each touch only their own entry.
func (t *Tracker) expire(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, code)
}

// Active returns a snapshot of the unexpired codes, soonest-to-expire last
// (descending ValidUntil, the order the dashboard shows them in). Anything
// already past its window at call time is pruned even if its timer has not
// fired yet.
func (t *Tracker) Active() []OTP {
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OTP, 0, len(t.entries))
	for code, e := range t.entries {
		if !now.Before(e.otp.ValidUntil) {
			e.timer.Stop()
			delete(t.entries, code)
			continue
		}
		out = append(out, e.otp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidUntil.Equal(out[j].ValidUntil) {
			return out[i].ValidUntil.After(out[j].ValidUntil)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Refresh reconciles the cache with the backend's list of this teacher's
// codes. Expired entries in the answer are skipped; live ones are
// (re)inserted with fresh removal timers.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	employeeID := t.employeeID
	t.mu.Unlock()
	if employeeID == "" {
		return ErrNoTeacher
	}

	listed, err := t.backend.ListOTPs(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("refresh codes: %w", err)
	}

	t.Reset()
	t.mu.Lock()
	t.employeeID = employeeID
	t.mu.Unlock()

	for _, info := range listed {
		t.Insert(OTP{
			Code:       info.Code,
			Subject:    info.Subject,
			IssuedFor:  employeeID,
			ValidFrom:  info.ValidFrom.Time,
			ValidUntil: info.ValidUntil.Time,
		})
	}
	return nil
}

// Reset stops all removal timers and empties the list. Used on logout.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for code, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, code)
	}
	t.employeeID = ""
}
