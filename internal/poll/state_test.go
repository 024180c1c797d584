package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusReviewRequired.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("PENDING").Terminal())
	assert.False(t, Status("PROCESSING").Terminal())
	assert.False(t, Status("completed").Terminal())
}

func TestAdvance_DoublesUpToCeiling(t *testing.T) {
	t.Parallel()

	s := NewState("tx-1", 30*time.Second, 120*time.Second)
	var waits []time.Duration
	for range 5 {
		var wait time.Duration
		var done bool
		s, wait, done = Advance(s, "PENDING", 120*time.Second)
		assert.False(t, done)
		waits = append(waits, wait)
	}

	assert.Equal(t, []time.Duration{
		30 * time.Second, 60 * time.Second, 120 * time.Second, 120 * time.Second, 120 * time.Second,
	}, waits)
	assert.Equal(t, 5, s.Attempts)
	assert.Equal(t, Status("PENDING"), s.Status)
}

func TestAdvance_Terminal(t *testing.T) {
	t.Parallel()

	s := NewState("tx-1", 30*time.Second, 120*time.Second)
	s, _, _ = Advance(s, "PENDING", 120*time.Second)

	next, wait, done := Advance(s, StatusReviewRequired, 120*time.Second)
	assert.True(t, done)
	assert.Zero(t, wait)
	assert.Equal(t, 2, next.Attempts)
	assert.Equal(t, StatusReviewRequired, next.Status)
	assert.Equal(t, s.Interval, next.Interval)
}

func TestNewState_ClampsInitialToCeiling(t *testing.T) {
	t.Parallel()

	s := NewState("tx-1", 5*time.Minute, 2*time.Minute)
	assert.Equal(t, 2*time.Minute, s.Interval)

	_, wait, _ := Advance(s, "PENDING", 2*time.Minute)
	assert.Equal(t, 2*time.Minute, wait)
}
