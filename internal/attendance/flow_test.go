package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/metrics"
	"attendclient/internal/signal"
)

type fakeBackend struct {
	markCalls   int
	lastSub     api.Submission
	markErr     error
	markResult  api.MarkResult
	records     []api.Record
	recordsErr  error
	markStarted chan struct{}
	markRelease chan struct{}
}

func (b *fakeBackend) CheckOTP(_ context.Context, code string) (api.OTPInfo, error) {
	if code == "GONE" {
		return api.OTPInfo{}, api.ErrNotFound
	}
	return api.OTPInfo{Code: code, Subject: "EMT"}, nil
}

func (b *fakeBackend) MarkAttendance(_ context.Context, sub api.Submission) (api.MarkResult, error) {
	b.markCalls++
	b.lastSub = sub
	if b.markStarted != nil {
		close(b.markStarted)
		<-b.markRelease
	}
	if b.markErr != nil {
		return api.MarkResult{}, b.markErr
	}
	return b.markResult, nil
}

func (b *fakeBackend) StudentAttendance(context.Context, string) ([]api.Record, error) {
	return b.records, b.recordsErr
}

type failingFingerprint struct{ err error }

func (f failingFingerprint) Fingerprint(context.Context) (string, error) { return "", f.err }

type slowLocator struct{}

func (slowLocator) Locate(ctx context.Context) (signal.Coordinates, error) {
	<-ctx.Done()
	return signal.Coordinates{}, ctx.Err()
}

func newTestFlow(backend *fakeBackend) *Flow {
	return NewFlow(backend,
		signal.StaticFingerprint("dev-1"),
		signal.StaticLocator{Lat: 12.97, Lng: 77.59},
		time.Second, zap.NewNop())
}

func TestSubmitRejectsMissingFieldsWithoutNetwork(t *testing.T) {
	backend := &fakeBackend{}
	flow := newTestFlow(backend)

	cases := []struct {
		roll, subject, code, field string
	}{
		{"", "EMT", "AB12CD", "roll number"},
		{"21E001", "", "AB12CD", "subject"},
		{"21E001", "EMT", "   ", "code"},
	}
	invalidBefore := testutil.ToFloat64(metrics.Submissions.WithLabelValues("invalid"))
	for _, tc := range cases {
		_, err := flow.Submit(context.Background(), tc.roll, tc.subject, tc.code)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tc.field, verr.Field)
	}
	assert.Zero(t, backend.markCalls, "no request may be sent on local validation failure")
	invalidAfter := testutil.ToFloat64(metrics.Submissions.WithLabelValues("invalid"))
	assert.Equal(t, float64(len(cases)), invalidAfter-invalidBefore)
}

func TestSubmitSendsBothSignals(t *testing.T) {
	marked := time.Date(2025, 9, 1, 9, 5, 0, 0, time.UTC)
	backend := &fakeBackend{markResult: api.MarkResult{
		Message:  "Attendance marked",
		MarkedAt: api.Time{Time: marked},
	}}
	flow := newTestFlow(backend)

	record, err := flow.Submit(context.Background(), " 21E001 ", "EMT", "AB12CD")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.markCalls)
	assert.Equal(t, "21E001", backend.lastSub.RollNo)
	assert.Equal(t, "AB12CD", backend.lastSub.Code)
	assert.Equal(t, "dev-1", backend.lastSub.VisitorID)
	assert.Equal(t, 12.97, backend.lastSub.Lat)
	assert.Equal(t, 77.59, backend.lastSub.Lng)

	assert.Equal(t, "21E001", record.RollNo)
	assert.Equal(t, marked, record.MarkedAt.Time)
}

func TestSubmitFingerprintFailureMeansNoRequest(t *testing.T) {
	backend := &fakeBackend{}
	flow := NewFlow(backend,
		failingFingerprint{err: errors.New("cache unwritable")},
		signal.StaticLocator{Lat: 1, Lng: 2},
		time.Second, zap.NewNop())

	_, err := flow.Submit(context.Background(), "21E001", "EMT", "AB12CD")
	var serr *SignalError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "attendance was not submitted")
	assert.Zero(t, backend.markCalls)
}

func TestSubmitGeolocationTimeoutMeansNoRequest(t *testing.T) {
	backend := &fakeBackend{}
	flow := NewFlow(backend,
		signal.StaticFingerprint("dev-1"),
		slowLocator{},
		20*time.Millisecond, zap.NewNop())

	_, err := flow.Submit(context.Background(), "21E001", "EMT", "AB12CD")
	var serr *SignalError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, backend.markCalls)
}

func TestSubmitBackendRejectionPassesThrough(t *testing.T) {
	rejection := &api.Error{Status: 400, Message: "Attendance already marked"}
	backend := &fakeBackend{markErr: rejection}
	flow := newTestFlow(backend)

	_, err := flow.Submit(context.Background(), "21E001", "EMT", "AB12CD")
	var backendErr *api.Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, rejection.Message, backendErr.Message)
}

func TestSubmitInFlightGuard(t *testing.T) {
	backend := &fakeBackend{
		markStarted: make(chan struct{}),
		markRelease: make(chan struct{}),
	}
	flow := newTestFlow(backend)

	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), "21E001", "EMT", "AB12CD")
		done <- err
	}()
	<-backend.markStarted

	_, err := flow.Submit(context.Background(), "21E001", "EMT", "AB12CD")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(backend.markRelease)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.markCalls)
}

func TestCheckCodeRequiresInput(t *testing.T) {
	flow := newTestFlow(&fakeBackend{})

	_, err := flow.CheckCode(context.Background(), "  ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = flow.CheckCode(context.Background(), "GONE")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestRecordsAppliesLocalFilter(t *testing.T) {
	at := func(day int, subject string) api.Record {
		return api.Record{
			Subject:  subject,
			MarkedAt: api.Time{Time: time.Date(2025, 9, day, 9, 0, 0, 0, time.UTC)},
		}
	}
	backend := &fakeBackend{records: []api.Record{
		at(1, "EMT"), at(1, "VLSI"), at(2, "EMT"),
	}}
	flow := newTestFlow(backend)

	got, err := flow.Records(context.Background(), "21E001", Filter{Subject: "emt"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = flow.Records(context.Background(), "21E001", Filter{Date: "2025-09-02"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EMT", got[0].Subject)

	got, err = flow.Records(context.Background(), "21E001", Filter{Month: "2025-09", Subject: "VLSI"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
