package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/pubflow/pubflow-go/contracts"
)

func TestToPublishing(t *testing.T) {
	now := time.Now().UTC()
	msg := contracts.OutboundMessage{
		Exchange:   "orders",
		RoutingKey: "order.created",
		Body:       []byte(`{"id":42}`),
		Properties: contracts.MessageProperties{
			ContentType:     "application/json",
			ContentEncoding: "identity",
			Headers:         amqp.Table{"x-tenant": "acme"},
			DeliveryMode:    2,
			Priority:        5,
			CorrelationID:   "corr-1",
			ReplyTo:         "replies",
			Expiration:      "60000",
			MessageID:       "msg-1",
			Timestamp:       now,
			Type:            "OrderCreated",
			AppID:           "billing",
		},
	}

	pub := toPublishing(msg)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "identity", pub.ContentEncoding)
	assert.Equal(t, amqp.Table{"x-tenant": "acme"}, pub.Headers)
	assert.Equal(t, uint8(2), pub.DeliveryMode)
	assert.Equal(t, uint8(5), pub.Priority)
	assert.Equal(t, "corr-1", pub.CorrelationId)
	assert.Equal(t, "replies", pub.ReplyTo)
	assert.Equal(t, "60000", pub.Expiration)
	assert.Equal(t, "msg-1", pub.MessageId)
	assert.Equal(t, now, pub.Timestamp)
	assert.Equal(t, "OrderCreated", pub.Type)
	assert.Equal(t, "billing", pub.AppId)
	assert.Equal(t, []byte(`{"id":42}`), pub.Body)
}

func TestToPublishingZeroProperties(t *testing.T) {
	pub := toPublishing(contracts.OutboundMessage{Body: []byte("payload")})

	assert.Empty(t, pub.ContentType)
	assert.Empty(t, pub.MessageId)
	assert.True(t, pub.Timestamp.IsZero())
	assert.Equal(t, []byte("payload"), pub.Body)
}
