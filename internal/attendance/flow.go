// Package attendance implements the student-side marking workflow: advisory
// code checks, and submission with the device and location signals gathered
// strictly before the claim goes out.
package attendance

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/metrics"
	"attendclient/internal/signal"
)

// Backend is the slice of the API client the flow needs.
type Backend interface {
	CheckOTP(ctx context.Context, code string) (api.OTPInfo, error)
	MarkAttendance(ctx context.Context, sub api.Submission) (api.MarkResult, error)
	StudentAttendance(ctx context.Context, rollNo string) ([]api.Record, error)
}

// ValidationError is a local, pre-network rejection: a required field is
// missing. No request is sent when one of these fires.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "fill in all fields before marking attendance: " + e.Field + " is missing"
}

// SignalError marks a failure gathering the device fingerprint or location.
// The wording tells the user the problem is on their side, not a rejection.
type SignalError struct {
	Err error
}

func (e *SignalError) Error() string {
	return "could not gather device signals, attendance was not submitted: " + e.Err.Error()
}

func (e *SignalError) Unwrap() error { return e.Err }

// ErrSubmissionInFlight guards against re-triggering submit while one is
// pending, the moral equivalent of disabling the button.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

const defaultGeoTimeout = 10 * time.Second

// Flow coordinates one student's attendance marking.
type Flow struct {
	backend      Backend
	fingerprints signal.FingerprintProvider
	locator      signal.Locator
	geoTimeout   time.Duration
	log          *zap.Logger

	submitting atomic.Bool
}

// NewFlow wires the submission flow. geoTimeout bounds location acquisition;
// zero means the 10s default.
func NewFlow(backend Backend, fp signal.FingerprintProvider, loc signal.Locator, geoTimeout time.Duration, log *zap.Logger) *Flow {
	if geoTimeout <= 0 {
		geoTimeout = defaultGeoTimeout
	}
	return &Flow{
		backend:      backend,
		fingerprints: fp,
		locator:      loc,
		geoTimeout:   geoTimeout,
		log:          log,
	}
}

// CheckCode fetches a code's live metadata for display. Purely informational;
// a good answer is never authorization. api.ErrNotFound means the code is
// invalid or expired.
func (f *Flow) CheckCode(ctx context.Context, code string) (api.OTPInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return api.OTPInfo{}, &ValidationError{Field: "code"}
	}
	return f.backend.CheckOTP(ctx, code)
}

// Submit posts an attendance claim. Order is fixed: local field validation,
// then fingerprint, then location under a bounded timeout, and only with both
// signals in hand the network call. Any earlier failure means no claim was
// sent. On success the caller clears the code field and reloads the record
// list from the backend; nothing is appended locally.
func (f *Flow) Submit(ctx context.Context, rollNo, subject, code string) (api.Record, error) {
	rollNo = strings.TrimSpace(rollNo)
	subject = strings.TrimSpace(subject)
	code = strings.TrimSpace(code)
	switch {
	case rollNo == "":
		return api.Record{}, invalidSubmission("roll number")
	case subject == "":
		return api.Record{}, invalidSubmission("subject")
	case code == "":
		return api.Record{}, invalidSubmission("code")
	}

	if !f.submitting.CompareAndSwap(false, true) {
		return api.Record{}, ErrSubmissionInFlight
	}
	defer f.submitting.Store(false)

	fingerprint, err := f.fingerprints.Fingerprint(ctx)
	if err != nil {
		metrics.Submissions.WithLabelValues("signal_failed").Inc()
		return api.Record{}, &SignalError{Err: err}
	}

	geoCtx, cancel := context.WithTimeout(ctx, f.geoTimeout)
	coords, err := f.locator.Locate(geoCtx)
	cancel()
	if err != nil {
		metrics.Submissions.WithLabelValues("signal_failed").Inc()
		return api.Record{}, &SignalError{Err: err}
	}

	result, err := f.backend.MarkAttendance(ctx, api.Submission{
		RollNo:    rollNo,
		Subject:   subject,
		Code:      code,
		VisitorID: fingerprint,
		Lat:       coords.Lat,
		Lng:       coords.Lng,
	})
	if err != nil {
		var backendErr *api.Error
		if errors.As(err, &backendErr) {
			metrics.Submissions.WithLabelValues("rejected").Inc()
		} else {
			metrics.Submissions.WithLabelValues("transport").Inc()
		}
		return api.Record{}, err
	}

	metrics.Submissions.WithLabelValues("ok").Inc()
	f.log.Info("attendance marked",
		zap.String("roll_no", rollNo),
		zap.String("subject", subject))
	return api.Record{
		RollNo:   rollNo,
		Subject:  subject,
		MarkedAt: result.MarkedAt,
	}, nil
}

func invalidSubmission(field string) error {
	metrics.Submissions.WithLabelValues("invalid").Inc()
	return &ValidationError{Field: field}
}

// Records fetches the student's attendance from the backend (the sole source
// of truth for what counts as marked) and applies the given local filters.
func (f *Flow) Records(ctx context.Context, rollNo string, filt Filter) ([]api.Record, error) {
	records, err := f.backend.StudentAttendance(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	return filt.Apply(records), nil
}
