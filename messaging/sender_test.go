package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/contracts"
)

func TestSenderSend(t *testing.T) {
	t.Run("publishes all messages in order on one channel", func(t *testing.T) {
		ch := newFakeChannel()
		provider := providerFor(ch)
		sender := NewSender(provider)

		err := sender.Send(context.Background(), outboundMessages(5))
		require.NoError(t, err)

		require.Equal(t, 5, ch.publishedCount())
		for i, msg := range ch.published {
			assert.Equal(t, fmt.Sprintf("msg-%d", i+1), string(msg.Body))
		}
		assert.Equal(t, 1, provider.calls)
		assert.Equal(t, 1, ch.closeCalls)
	})

	t.Run("each invocation gets a fresh channel", func(t *testing.T) {
		provider := &fakeProvider{}
		sender := NewSender(provider)

		require.NoError(t, sender.Send(context.Background(), outboundMessages(1)))
		require.NoError(t, sender.Send(context.Background(), outboundMessages(1)))

		assert.Equal(t, 2, provider.calls)
		require.Len(t, provider.created, 2)
		assert.NotSame(t, provider.created[0], provider.created[1])
	})

	t.Run("abort policy propagates the publish failure", func(t *testing.T) {
		boom := errors.New("publish refused")
		ch := newFakeChannel()
		ch.publishErr = func(int) error { return boom }
		sender := NewSender(providerFor(ch))

		abort := ExceptionPolicyFunc(func(context.Context, *SendContext, error) RetryDecision {
			return Abort
		})
		err := sender.Send(context.Background(), outboundMessages(3), WithSendExceptionPolicy(abort))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, ch.attempts)
		assert.True(t, ch.IsClosed())
	})

	t.Run("retry policy re-issues until the publish succeeds", func(t *testing.T) {
		boom := errors.New("transient failure")
		ch := newFakeChannel()
		ch.publishErr = func(n int) error {
			if n <= 2 {
				return boom
			}
			return nil
		}

		var observed []*SendContext
		retry := ExceptionPolicyFunc(func(_ context.Context, sc *SendContext, _ error) RetryDecision {
			observed = append(observed, sc)
			return Retry
		})
		sender := NewSender(providerFor(ch), WithExceptionPolicy(retry))

		err := sender.Send(context.Background(), outboundMessages(1))
		require.NoError(t, err)
		assert.Equal(t, 3, ch.attempts)
		require.Len(t, observed, 2)
		assert.Equal(t, 2, observed[1].Attempts)
		assert.False(t, observed[1].FirstFailure.IsZero())
	})

	t.Run("per-invocation policy overrides the sender default", func(t *testing.T) {
		boom := errors.New("publish refused")
		ch := newFakeChannel()
		ch.publishErr = func(int) error { return boom }

		defaultCalled := false
		sender := NewSender(providerFor(ch), WithExceptionPolicy(
			ExceptionPolicyFunc(func(context.Context, *SendContext, error) RetryDecision {
				defaultCalled = true
				return Retry
			})))

		err := sender.Send(context.Background(), outboundMessages(1),
			WithSendExceptionPolicy(ExceptionPolicyFunc(func(context.Context, *SendContext, error) RetryDecision {
				return Abort
			})))
		assert.ErrorIs(t, err, boom)
		assert.False(t, defaultCalled)
	})

	t.Run("close failure is logged not propagated", func(t *testing.T) {
		ch := newFakeChannel()
		ch.closeErr = errors.New("close timed out")
		sender := NewSender(providerFor(ch))

		assert.NoError(t, sender.Send(context.Background(), outboundMessages(2)))
		assert.Equal(t, 1, ch.closeCalls)
	})

	t.Run("context cancellation stops the send", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ch := newFakeChannel()
		sender := NewSender(providerFor(ch))

		messages := make(chan contracts.OutboundMessage)
		err := sender.Send(ctx, messages)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, ch.IsClosed())
	})

	t.Run("channel acquisition failure is returned", func(t *testing.T) {
		boom := errors.New("no connection")
		sender := NewSender(&fakeProvider{err: boom})

		err := sender.Send(context.Background(), outboundMessages(1))
		assert.ErrorIs(t, err, boom)
	})
}
