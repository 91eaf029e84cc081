package contracts

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpecification describes a queue to declare. An empty Name requests a
// broker-assigned name; the topology layer then declares the queue as
// non-durable, exclusive and auto-delete.
type QueueSpecification struct {
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueInfo is the broker's reply to a queue declaration.
type QueueInfo struct {
	Name      string
	Messages  int
	Consumers int
}

// ExchangeSpecification describes an exchange to declare.
type ExchangeSpecification struct {
	Name       string
	Type       string // direct, fanout, topic, headers
	Durable    bool
	AutoDelete bool
	Internal   bool
	Arguments  amqp.Table
}

// BindingSpecification describes a queue-to-exchange binding.
type BindingSpecification struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// QueueDeleteSpecification describes a queue deletion. IfUnused and IfEmpty
// make the deletion conditional on the broker side.
type QueueDeleteSpecification struct {
	Name     string
	IfUnused bool
	IfEmpty  bool
}

// ExchangeDeleteSpecification describes an exchange deletion.
type ExchangeDeleteSpecification struct {
	Name     string
	IfUnused bool
}
