// Package poll waits on a document-intelligence job by polling its status
// with capped exponential backoff.
package poll

import "time"

// Status is a job status reported by the document-intelligence service.
// Any value outside the terminal set means the job is still running.
type Status string

const (
	StatusCompleted      Status = "COMPLETED"
	StatusReviewRequired Status = "REVIEW_REQUIRED"
	StatusFailed         Status = "FAILED"
)

// Terminal reports whether s ends polling.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusReviewRequired, StatusFailed:
		return true
	}
	return false
}

const (
	DefaultInitialInterval = 30 * time.Second
	DefaultMaxInterval     = 120 * time.Second
)

// State is the progress of one polling session.
type State struct {
	TxID     string
	Status   Status
	Interval time.Duration
	Attempts int
}

// NewState starts a session for txID. The initial interval is clamped to
// the ceiling.
func NewState(txID string, initial, ceiling time.Duration) State {
	if ceiling > 0 && initial > ceiling {
		initial = ceiling
	}
	return State{TxID: txID, Interval: initial}
}

// Advance records one observed status. When observed is terminal, done is
// true and wait is zero. Otherwise the caller sleeps for wait before the
// next request; the interval doubles up to ceiling and never shrinks.
func Advance(s State, observed Status, ceiling time.Duration) (next State, wait time.Duration, done bool) {
	next = s
	next.Attempts++
	next.Status = observed
	if observed.Terminal() {
		return next, 0, true
	}

	wait = s.Interval
	doubled := s.Interval * 2
	if ceiling > 0 && doubled > ceiling {
		doubled = ceiling
	}
	if doubled > s.Interval {
		next.Interval = doubled
	}
	return next, wait, false
}
