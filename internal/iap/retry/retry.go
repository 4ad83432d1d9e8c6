package retry

import (
	"context"
	"time"
)

// Policy is a backoff policy. Factor <= 1 keeps the delay constant.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	if p.Factor <= 1 {
		return d
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
	}
	return d
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the production Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs an operation under a Policy.
type Retrier struct {
	Policy Policy
	Sleep  Sleeper
}

// New returns a Retrier using real timers.
func New(p Policy) Retrier {
	return Retrier{Policy: p, Sleep: TimerSleep}
}

// Do calls fn until it succeeds or the policy is exhausted. It returns the
// number of attempts made and the last error. No sleep happens after the final attempt.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = TimerSleep
	}
	max := r.Policy.attempts()

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
		if attempt == max {
			return attempt, err
		}
		if serr := sleep(ctx, r.Policy.Delay(attempt)); serr != nil {
			return attempt, err
		}
	}
	return max, err
}
