package messaging

import (
	"context"

	"github.com/pubflow/pubflow-go/contracts"
)

// Channel is a logical sub-session on the shared broker connection. Channels
// are cheap to create and are not safe for unsynchronized concurrent use: the
// sender gives each invocation its own, and the topology manager serializes
// its operations on the one channel it deliberately shares.
type Channel interface {
	// Confirm puts the channel into publisher-confirmation mode.
	Confirm() error

	// NextPublishSeqNo returns the sequence number the next publish will be
	// assigned. Strictly increasing per channel, starting at 1.
	NextPublishSeqNo() uint64

	// Publish sends one message on this channel.
	Publish(ctx context.Context, msg contracts.OutboundMessage) error

	// ConfirmListener registers ack/nack callbacks for publisher
	// confirmations. Callbacks are invoked one at a time on the broker
	// client's notification context; multiple=true means every unconfirmed
	// delivery tag up to and including the given one.
	ConfirmListener(onAck, onNack func(deliveryTag uint64, multiple bool))

	// CloseListener registers a callback invoked once if the channel shuts
	// down abnormally.
	CloseListener(onClose func(err error))

	// Resource declaration RPCs. Raw broker errors are returned; the
	// topology layer wraps them.
	DeclareQueue(spec contracts.QueueSpecification) (contracts.QueueInfo, error)
	DeclareExchange(spec contracts.ExchangeSpecification) error
	BindQueue(spec contracts.BindingSpecification) error
	UnbindQueue(spec contracts.BindingSpecification) error
	DeleteQueue(spec contracts.QueueDeleteSpecification) (int, error)
	DeleteExchange(spec contracts.ExchangeDeleteSpecification) error

	// Close closes the channel. Safe to call more than once.
	Close() error

	// IsClosed reports whether the channel is no longer usable.
	IsClosed() bool
}

// ChannelProvider hands out fresh channels backed by the shared connection.
// The first call may establish the connection; implementations must collapse
// concurrent first uses into a single physical connection.
type ChannelProvider interface {
	Channel(ctx context.Context) (Channel, error)
}
