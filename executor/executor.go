// Package executor is the retry/timeout wrapper that interposes on every
// coordination-service call. It is the only component permitted to contact
// the coordination service directly -- every other component submits a
// closure through Executor.Run and never touches the session/store handles
// itself.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/session"
)

// DefaultMaxRetries bounds the number of reconnect-and-retry or
// generic-retry attempts per Run call, independent of any component-level
// retry bound (e.g. the ID allocator's own bounded retry on a zero suffix).
const DefaultMaxRetries = 5

// Op is a unit of coordination-service work. It must respect ctx's deadline.
type Op func(ctx context.Context) error

// Executor arms a per-call deadline around each Op and applies the
// reconnect/retry policy from the specification.
type Executor struct {
	sessions   *session.Manager
	maxRetries uint64
}

// New returns an Executor driving calls through sessions, retrying up to
// maxRetries times (DefaultMaxRetries if <= 0).
func New(sessions *session.Manager, maxRetries int) *Executor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Executor{sessions: sessions, maxRetries: uint64(maxRetries)}
}

// Run executes op under a fresh deadline on every attempt, retrying per the
// classification in classify.go. Exceeding the deadline fails the whole
// invocation immediately with a *txcoord.TimeoutError -- it is never
// retried. Exhausting the retry budget on a reconnect/generic fault fails
// with a *txcoord.TransactionError{Reason: txcoord.RetriesExhausted}.
func (e *Executor) Run(ctx context.Context, opName string, deadline time.Duration, op Op) error {
	b := retry.WithMaxRetries(e.maxRetries, retry.NewFibonacci(200*time.Millisecond))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			// Timeouts are terminal: wrap as non-retryable so retry.Do stops here.
			return &timeoutSentinel{&txcoord.TimeoutError{Op: opName, Err: err}}
		}

		switch classify(err) {
		case classPassThrough:
			return &passThroughSentinel{err}
		case classReconnect:
			if rerr := e.sessions.Reestablish(); rerr != nil {
				err = fmt.Errorf("%w (reconnect also failed: %v)", err, rerr)
			}
			return retry.RetryableError(err)
		default:
			return retry.RetryableError(err)
		}
	})

	if err == nil {
		return nil
	}
	var ts *timeoutSentinel
	if errors.As(err, &ts) {
		return ts.err
	}
	var ps *passThroughSentinel
	if errors.As(err, &ps) {
		return ps.err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &txcoord.TimeoutError{Op: opName, Err: err}
	}
	// Anything else reaching here came off a RetryableError chain that ran
	// out of attempts.
	return txcoord.NewTransactionError(opName, txcoord.RetriesExhausted, err)
}

// timeoutSentinel lets Run distinguish "op deadline exceeded" (do not
// retry) from a retryable fault while still flowing through retry.Do's
// single error-return path.
type timeoutSentinel struct {
	err *txcoord.TimeoutError
}

func (t *timeoutSentinel) Error() string { return t.err.Error() }
func (t *timeoutSentinel) Unwrap() error { return t.err }

// passThroughSentinel lets Run distinguish "re-raise verbatim, no retry"
// from a retryable fault while still flowing through retry.Do's single
// error-return path.
type passThroughSentinel struct {
	err error
}

func (p *passThroughSentinel) Error() string { return p.err.Error() }
func (p *passThroughSentinel) Unwrap() error { return p.err }
