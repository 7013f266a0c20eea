package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CallOptions bound one outbound chat call.
type CallOptions struct {
	Tier    ModelTier
	MaxOut  int
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultCallOptions returns the per-call discipline shared by skim and
// enrichment: 8s timeout, 2 retries with doubling backoff.
func DefaultCallOptions(tier ModelTier, maxOut int) CallOptions {
	return CallOptions{
		Tier:    tier,
		MaxOut:  maxOut,
		Timeout: 8 * time.Second,
		Retries: 2,
		Backoff: 500 * time.Millisecond,
	}
}

// TimeoutError marks a call that exceeded its per-call deadline. Timeouts
// are classified separately from transport errors in metrics.
type TimeoutError struct {
	Attempts int
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("LLM call timed out after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is (or wraps) a call timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// Call performs one chat call with per-attempt timeout and exponential
// backoff. The parent context cancels between attempts; a cancel is never
// retried or swallowed.
func Call(ctx context.Context, client Client, msgs []Message, opts CallOptions) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		resp, err := client.ChatJSON(attemptCtx, msgs, opts.Tier, opts.MaxOut)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// The parent being done ends the loop regardless of attempt count.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if attempt < opts.Retries {
			wait := opts.Backoff * (1 << uint(attempt))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", &TimeoutError{Attempts: opts.Retries + 1, Cause: lastErr}
	}
	return "", lastErr
}
