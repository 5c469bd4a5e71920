package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

// RetryPolicy controls how working-copy operations are retried.
//
// MaxAttempts of 0 means the operation is retried until it succeeds or the
// context is cancelled. The delay starts at InitialBackoff and doubles after
// every failure, capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PolicyFromConfig builds a RetryPolicy from configuration.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
	}
}

// Unlimited reports whether the policy never gives up.
func (p RetryPolicy) Unlimited() bool {
	return p.MaxAttempts <= 0
}

// nextBackoff returns the delay after the given one.
func (p RetryPolicy) nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	d *= 2
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry runs fn until it succeeds, returns a permanent error, the attempts
// are exhausted or ctx is cancelled. Every failed attempt is logged at warn.
func Retry(ctx context.Context, p RetryPolicy, log *logger.Logger, op string, fn func(ctx context.Context) error) error {
	if log == nil {
		log = logger.NewNop()
	}

	backoff := p.InitialBackoff
	var err error

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%s cancelled after %d attempts: %w", op, attempt-1, errors.Join(ctxErr, err))
			}
			return fmt.Errorf("%s cancelled: %w", op, ctxErr)
		}

		err = fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Infow("Operation succeeded after retry", "operation", op, "attempts", attempt)
			}
			return nil
		}

		if IsPermanent(err) {
			return fmt.Errorf("%s failed: %w", op, err)
		}

		if !p.Unlimited() && attempt >= p.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err)
		}

		log.Warnw("Operation failed, retrying",
			"operation", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		if backoff > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled after %d attempts: %w", op, attempt, errors.Join(ctx.Err(), err))
			case <-time.After(backoff):
			}
		}
		backoff = p.nextBackoff(backoff)
	}
}
