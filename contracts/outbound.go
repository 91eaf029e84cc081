package contracts

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageProperties carries the broker metadata published alongside a message
// body. Zero values are omitted on the wire.
type MessageProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         amqp.Table
	DeliveryMode    uint8 // 1 = transient, 2 = persistent
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	AppID           string
}

// OutboundMessage is an immutable message to publish: destination exchange,
// routing key, properties and body.
type OutboundMessage struct {
	Exchange   string
	RoutingKey string
	Properties MessageProperties
	Body       []byte
}

// NewOutboundMessage creates an outbound message with a generated message ID
// and the current timestamp.
func NewOutboundMessage(exchange, routingKey string, body []byte) OutboundMessage {
	return OutboundMessage{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Body:       body,
		Properties: MessageProperties{
			MessageID: uuid.New().String(),
			Timestamp: time.Now().UTC(),
		},
	}
}

// OutboundMessageResult is the per-message outcome of a confirmed publish.
// Ack reports whether the broker acknowledged the message; Err is set when
// the message failed before a broker confirmation could be obtained.
type OutboundMessageResult struct {
	Message OutboundMessage
	Ack     bool
	Err     error
}
