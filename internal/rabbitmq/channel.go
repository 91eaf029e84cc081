package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pubflow/pubflow-go/contracts"
)

// confirmBuffer bounds how far the broker's confirmation notifications can
// run ahead of the listener callbacks.
const confirmBuffer = 64

// AMQPChannel adapts *amqp.Channel to the surface the messaging layer
// operates on. A channel is privately owned by one send invocation (or by the
// topology manager) and must not be shared between concurrent publishers.
type AMQPChannel struct {
	ch     *amqp.Channel
	id     string
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newAMQPChannel(ch *amqp.Channel, logger *slog.Logger) *AMQPChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPChannel{
		ch:     ch,
		id:     uuid.New().String(),
		logger: logger,
	}
}

// ID returns the channel's log-correlation identifier.
func (c *AMQPChannel) ID() string {
	return c.id
}

// Confirm puts the channel into publisher-confirmation mode.
func (c *AMQPChannel) Confirm() error {
	if err := c.ch.Confirm(false); err != nil {
		return &contracts.ChannelError{
			Op:        "select confirm mode",
			ChannelID: c.id,
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// NextPublishSeqNo returns the sequence number the next publish on this
// channel will be assigned.
func (c *AMQPChannel) NextPublishSeqNo() uint64 {
	return c.ch.GetNextPublishSeqNo()
}

// Publish sends one message on this channel.
func (c *AMQPChannel) Publish(ctx context.Context, msg contracts.OutboundMessage) error {
	err := c.ch.PublishWithContext(
		ctx,
		msg.Exchange,
		msg.RoutingKey,
		false, // mandatory
		false, // immediate
		toPublishing(msg),
	)
	if err != nil {
		return &contracts.PublishError{
			Exchange:   msg.Exchange,
			RoutingKey: msg.RoutingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

// ConfirmListener starts delivering broker confirmations to the given
// callbacks. Callbacks run one at a time on a dedicated pump goroutine, the
// Go analog of the broker client's notification thread; they must not block
// on work that waits for further confirmations. amqp091 resolves the
// protocol's multiple flag before notifying, so bridged callbacks always
// carry multiple=false.
func (c *AMQPChannel) ConfirmListener(onAck, onNack func(deliveryTag uint64, multiple bool)) {
	confirms := c.ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	go func() {
		for confirmation := range confirms {
			if confirmation.Ack {
				onAck(confirmation.DeliveryTag, false)
			} else {
				onNack(confirmation.DeliveryTag, false)
			}
		}
	}()
}

// CloseListener invokes onClose once if the channel shuts down abnormally.
// A graceful Close does not trigger it.
func (c *AMQPChannel) CloseListener(onClose func(err error)) {
	closes := c.ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closes; ok && err != nil {
			onClose(err)
		}
	}()
}

// DeclareQueue declares a queue and returns the broker's reply. The
// specification is passed through verbatim; defaulting for broker-named
// queues happens in the topology layer.
func (c *AMQPChannel) DeclareQueue(spec contracts.QueueSpecification) (contracts.QueueInfo, error) {
	q, err := c.ch.QueueDeclare(
		spec.Name,
		spec.Durable,
		spec.AutoDelete,
		spec.Exclusive,
		false, // no-wait
		spec.Arguments,
	)
	if err != nil {
		return contracts.QueueInfo{}, err
	}
	return contracts.QueueInfo{
		Name:      q.Name,
		Messages:  q.Messages,
		Consumers: q.Consumers,
	}, nil
}

// DeclareExchange declares an exchange.
func (c *AMQPChannel) DeclareExchange(spec contracts.ExchangeSpecification) error {
	return c.ch.ExchangeDeclare(
		spec.Name,
		spec.Type,
		spec.Durable,
		spec.AutoDelete,
		spec.Internal,
		false, // no-wait
		spec.Arguments,
	)
}

// BindQueue binds a queue to an exchange.
func (c *AMQPChannel) BindQueue(spec contracts.BindingSpecification) error {
	return c.ch.QueueBind(
		spec.Queue,
		spec.RoutingKey,
		spec.Exchange,
		false, // no-wait
		spec.Arguments,
	)
}

// UnbindQueue removes a queue-to-exchange binding.
func (c *AMQPChannel) UnbindQueue(spec contracts.BindingSpecification) error {
	return c.ch.QueueUnbind(
		spec.Queue,
		spec.RoutingKey,
		spec.Exchange,
		spec.Arguments,
	)
}

// DeleteQueue deletes a queue and returns the number of purged messages.
func (c *AMQPChannel) DeleteQueue(spec contracts.QueueDeleteSpecification) (int, error) {
	return c.ch.QueueDelete(
		spec.Name,
		spec.IfUnused,
		spec.IfEmpty,
		false, // no-wait
	)
}

// DeleteExchange deletes an exchange.
func (c *AMQPChannel) DeleteExchange(spec contracts.ExchangeDeleteSpecification) error {
	return c.ch.ExchangeDelete(spec.Name, spec.IfUnused, false)
}

// Close closes the channel. Safe to call more than once; later calls return
// the first result.
func (c *AMQPChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ch.Close()
	})
	return c.closeErr
}

// IsClosed reports whether the channel is no longer usable.
func (c *AMQPChannel) IsClosed() bool {
	return c.ch.IsClosed()
}

// toPublishing maps an outbound message onto the wire representation.
func toPublishing(msg contracts.OutboundMessage) amqp.Publishing {
	props := msg.Properties
	return amqp.Publishing{
		Headers:         props.Headers,
		ContentType:     props.ContentType,
		ContentEncoding: props.ContentEncoding,
		DeliveryMode:    props.DeliveryMode,
		Priority:        props.Priority,
		CorrelationId:   props.CorrelationID,
		ReplyTo:         props.ReplyTo,
		Expiration:      props.Expiration,
		MessageId:       props.MessageID,
		Timestamp:       props.Timestamp,
		Type:            props.Type,
		AppId:           props.AppID,
		Body:            msg.Body,
	}
}
