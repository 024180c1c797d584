package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// StatusChecker fetches the raw status document of a job.
type StatusChecker interface {
	SubmissionStatus(ctx context.Context, token, txID string) ([]byte, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper sleeps on a timer and returns early with the context's
// error if it is cancelled first.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Transition describes one observed status.
type Transition struct {
	TxID     string
	Attempt  int
	Previous Status
	Current  Status
	// Wait is the sleep before the next request, zero when terminal.
	Wait     time.Duration
	Elapsed  time.Duration
	Terminal bool
}

// Result is the outcome of a session that reached a terminal status.
type Result struct {
	TxID     string          `json:"tx_id"`
	Status   Status          `json:"status"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// CallError reports that the status request itself failed, as opposed to
// the job reporting FAILED.
type CallError struct {
	TxID    string
	Attempt int
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("poll: status call for %s failed on attempt %d: %v", e.TxID, e.Attempt, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Option configures a Poller.
type Option func(*Poller)

// WithInitialInterval overrides the first sleep.
func WithInitialInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.initial = d
		}
	}
}

// WithMaxInterval overrides the backoff ceiling.
func WithMaxInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.ceiling = d
		}
	}
}

// WithSleeper replaces the sleep between requests.
func WithSleeper(s Sleeper) Option {
	return func(p *Poller) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithStatusPath sets the gjson path of the status inside the response.
func WithStatusPath(path string) Option {
	return func(p *Poller) {
		if path != "" {
			p.statusPath = path
		}
	}
}

// WithObserver registers fn to be called on every observed status.
func WithObserver(fn func(Transition)) Option {
	return func(p *Poller) {
		p.observe = fn
	}
}

// Poller polls a StatusChecker until a job reaches a terminal status.
type Poller struct {
	checker    StatusChecker
	initial    time.Duration
	ceiling    time.Duration
	sleep      Sleeper
	statusPath string
	observe    func(Transition)
	now        func() time.Time
}

// New creates a Poller with the default 30s initial interval and 120s
// ceiling.
func New(checker StatusChecker, opts ...Option) *Poller {
	p := &Poller{
		checker:    checker,
		initial:    DefaultInitialInterval,
		ceiling:    DefaultMaxInterval,
		sleep:      ContextSleeper,
		statusPath: "status",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll requests the status of txID immediately and then after every
// backoff interval until the status is terminal. There is no attempt limit;
// callers bound the session through ctx. A failed status request ends the
// session with a *CallError and is not retried.
func (p *Poller) Poll(ctx context.Context, txID, token string) (*Result, error) {
	log := zap.L().With(zap.String("tx_id", txID))
	state := NewState(txID, p.initial, p.ceiling)
	start := p.now()

	for {
		body, err := p.checker.SubmissionStatus(ctx, token, txID)
		if err != nil {
			log.Error("poll: status call failed", zap.Int("attempt", state.Attempts+1), zap.Error(err))
			return nil, &CallError{TxID: txID, Attempt: state.Attempts + 1, Err: err}
		}

		observed, err := p.extract(body)
		if err != nil {
			log.Error("poll: malformed status response", zap.Int("attempt", state.Attempts+1), zap.Error(err))
			return nil, &CallError{TxID: txID, Attempt: state.Attempts + 1, Err: err}
		}

		prev := state.Status
		next, wait, done := Advance(state, observed, p.ceiling)
		tr := Transition{
			TxID:     txID,
			Attempt:  next.Attempts,
			Previous: prev,
			Current:  observed,
			Wait:     wait,
			Elapsed:  p.now().Sub(start),
			Terminal: done,
		}
		p.report(log, tr)
		state = next

		if done {
			return &Result{
				TxID:     txID,
				Status:   state.Status,
				Payload:  json.RawMessage(body),
				Attempts: state.Attempts,
			}, nil
		}

		if err := p.sleep(ctx, wait); err != nil {
			return nil, eris.Wrapf(err, "poll: interrupted waiting on %s after %d attempts", txID, state.Attempts)
		}
	}
}

func (p *Poller) extract(body []byte) (Status, error) {
	if !gjson.ValidBytes(body) {
		return "", eris.New("poll: status response is not valid JSON")
	}
	res := gjson.GetBytes(body, p.statusPath)
	if !res.Exists() {
		return "", eris.Errorf("poll: status response has no %q", p.statusPath)
	}
	if res.Type != gjson.String || res.String() == "" {
		return "", eris.Errorf("poll: status response %q is not a non-empty string", p.statusPath)
	}
	return Status(res.String()), nil
}

func (p *Poller) report(log *zap.Logger, tr Transition) {
	fields := []zap.Field{
		zap.Int("attempt", tr.Attempt),
		zap.String("previous_status", string(tr.Previous)),
		zap.String("status", string(tr.Current)),
		zap.Duration("wait", tr.Wait),
		zap.Duration("elapsed", tr.Elapsed),
	}
	switch {
	case tr.Terminal:
		log.Info("poll: terminal status", fields...)
	case tr.Previous != tr.Current:
		log.Info("poll: status changed", fields...)
	default:
		log.Debug("poll: status unchanged", fields...)
	}
	if p.observe != nil {
		p.observe(tr)
	}
}
