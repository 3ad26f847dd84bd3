package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualAdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	var fired []string
	clk.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	clk.AfterFunc(1*time.Minute, func() { fired = append(fired, "a") })
	clk.AfterFunc(10*time.Minute, func() { fired = append(fired, "late") })

	clk.Advance(5 * time.Minute)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(5*time.Minute), clk.Now())

	clk.Advance(5 * time.Minute)
	assert.Equal(t, []string{"a", "b", "late"}, fired)
}

func TestManualStopPreventsFiring(t *testing.T) {
	clk := NewManual(time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC))

	fired := false
	timer := clk.AfterFunc(time.Minute, func() { fired = true })
	require.True(t, timer.Stop())

	clk.Advance(2 * time.Minute)
	assert.False(t, fired)
	assert.False(t, timer.Stop(), "second stop has nothing left to cancel")
}

func TestManualCallbackSeesUpdatedNow(t *testing.T) {
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	var at time.Time
	clk.AfterFunc(90*time.Second, func() { at = clk.Now() })
	clk.Advance(3 * time.Minute)

	assert.Equal(t, start.Add(90*time.Second), at)
}
