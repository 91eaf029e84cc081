package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/pubflow/pubflow-go/contracts"
)

// Sender publishes outbound messages over channels derived from the shared
// connection. Safe for concurrent use; each invocation owns its channel.
type Sender struct {
	provider ChannelProvider
	logger   *slog.Logger
	policy   ExceptionPolicy
}

// SenderOption configures the Sender.
type SenderOption func(*Sender)

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithExceptionPolicy sets the default policy consulted on publish failures.
func WithExceptionPolicy(policy ExceptionPolicy) SenderOption {
	return func(s *Sender) {
		s.policy = policy
	}
}

// NewSender creates a new sender.
func NewSender(provider ChannelProvider, options ...SenderOption) *Sender {
	s := &Sender{
		provider: provider,
		logger:   slog.Default(),
		policy:   NewRetrySendingPolicy(defaultRetryTimeout, defaultRetryInterval),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// SendOptions configures one send invocation.
type SendOptions struct {
	ExceptionPolicy ExceptionPolicy
}

// SendOption configures one send invocation.
type SendOption func(*SendOptions)

// WithSendExceptionPolicy overrides the sender's policy for this invocation.
func WithSendExceptionPolicy(policy ExceptionPolicy) SendOption {
	return func(opts *SendOptions) {
		opts.ExceptionPolicy = policy
	}
}

// Send publishes every message from the input channel, in order, on one
// fresh channel, and returns once the input is exhausted. Publish failures
// consult the exception policy; Abort propagates the failure and ends the
// invocation. The channel is always closed exactly once on return, with
// close failures logged rather than propagated.
func (s *Sender) Send(ctx context.Context, messages <-chan contracts.OutboundMessage, options ...SendOption) error {
	opts := SendOptions{ExceptionPolicy: s.policy}
	for _, opt := range options {
		opt(&opts)
	}

	ch, err := s.provider.Channel(ctx)
	if err != nil {
		return err
	}
	defer s.closeChannel(ch)

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := s.publishWithPolicy(ctx, ch, msg, opts.ExceptionPolicy); err != nil {
				s.logger.Warn("send failed",
					"exchange", msg.Exchange,
					"routingKey", msg.RoutingKey,
					"error", err)
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// publishWithPolicy publishes one message, re-issuing it for as long as the
// policy answers Retry.
func (s *Sender) publishWithPolicy(ctx context.Context, ch Channel, msg contracts.OutboundMessage, policy ExceptionPolicy) error {
	sc := SendContext{Message: msg}
	for {
		err := ch.Publish(ctx, msg)
		if err == nil {
			if sc.Attempts > 0 {
				s.logger.Debug("publish succeeded after retry",
					"exchange", msg.Exchange,
					"routingKey", msg.RoutingKey,
					"attempts", sc.Attempts+1)
			}
			return nil
		}

		sc.Attempts++
		if sc.FirstFailure.IsZero() {
			sc.FirstFailure = time.Now()
		}

		if policy == nil || policy.Decide(ctx, &sc, err) == Abort {
			return err
		}

		s.logger.Debug("retrying publish",
			"exchange", msg.Exchange,
			"routingKey", msg.RoutingKey,
			"attempt", sc.Attempts)
	}
}

// closeChannel closes a send channel, best-effort.
func (s *Sender) closeChannel(ch Channel) {
	if ch.IsClosed() {
		return
	}
	if err := ch.Close(); err != nil {
		s.logger.Warn("channel did not close cleanly", "error", err)
	}
}
