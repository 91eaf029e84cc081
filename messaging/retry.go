package messaging

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pubflow/pubflow-go/contracts"
)

// RetryDecision is the outcome of an ExceptionPolicy: retry the failing
// publish, or abort the whole send.
type RetryDecision int

const (
	// Abort propagates the failure and terminates the send.
	Abort RetryDecision = iota
	// Retry re-issues the failing publish.
	Retry
)

// SendContext carries the timing state of one failing publish across policy
// decisions. The sender mutates it between attempts.
type SendContext struct {
	Message      contracts.OutboundMessage
	Attempts     int
	FirstFailure time.Time
}

// Elapsed returns the time since the first failed attempt.
func (c *SendContext) Elapsed() time.Duration {
	if c.FirstFailure.IsZero() {
		return 0
	}
	return time.Since(c.FirstFailure)
}

// ExceptionPolicy decides what to do with a publish failure. Implementations
// may sleep before returning Retry; they should honor ctx while doing so.
type ExceptionPolicy interface {
	Decide(ctx context.Context, sc *SendContext, err error) RetryDecision
}

// ExceptionPolicyFunc adapts a function to ExceptionPolicy.
type ExceptionPolicyFunc func(ctx context.Context, sc *SendContext, err error) RetryDecision

// Decide implements ExceptionPolicy.
func (f ExceptionPolicyFunc) Decide(ctx context.Context, sc *SendContext, err error) RetryDecision {
	return f(ctx, sc, err)
}

const (
	defaultRetryTimeout  = 10 * time.Second
	defaultRetryInterval = 200 * time.Millisecond
)

// RetrySendingPolicy retries recoverable connection-level failures for a
// bounded total duration, sleeping a fixed interval between attempts.
// Anything the Recoverable predicate rejects aborts immediately.
type RetrySendingPolicy struct {
	Timeout     time.Duration
	Interval    time.Duration
	Recoverable func(error) bool
}

// NewRetrySendingPolicy creates a retry policy with the connection-recovery
// predicate.
func NewRetrySendingPolicy(timeout, interval time.Duration) *RetrySendingPolicy {
	return &RetrySendingPolicy{
		Timeout:     timeout,
		Interval:    interval,
		Recoverable: IsRecoverableConnectionError,
	}
}

// Decide implements ExceptionPolicy.
func (p *RetrySendingPolicy) Decide(ctx context.Context, sc *SendContext, err error) RetryDecision {
	if p.Recoverable != nil && !p.Recoverable(err) {
		return Abort
	}
	if sc.Elapsed() >= p.Timeout {
		return Abort
	}

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Retry
	case <-ctx.Done():
		return Abort
	}
}

// IsRecoverableConnectionError reports whether an error looks like a
// transient connection-level failure worth retrying, as opposed to a
// permanent protocol rejection.
func IsRecoverableConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}

	var connErr *contracts.ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	var chanErr *contracts.ChannelError
	if errors.As(err, &chanErr) {
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.ConnectionForced, amqp.ChannelError, amqp.FrameError,
			amqp.UnexpectedFrame, amqp.InternalError:
			return true
		}
		return amqpErr.Recover
	}

	return false
}
