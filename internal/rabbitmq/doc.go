// Package rabbitmq provides the RabbitMQ integration for the pubflow sender.
//
// This package includes:
//   - ConnectionManager: lazily establishes and caches a single shared
//     connection, collapsing concurrent first uses into one dial
//   - AMQPChannel: adapts an amqp091 channel to the interface the messaging
//     layer publishes and declares resources on, including the bridge from
//     the broker's confirmation notifications to ack/nack callbacks
//
// The connection is the expensive resource: exactly one is created per
// manager and shared by every operation until Close. Channels are cheap and
// handed out fresh per send invocation.
package rabbitmq
