// Package pubflow publishes messages to RabbitMQ and reliably reports, per
// message, whether the broker accepted them, while sharing one connection
// across every operation.
package pubflow

import (
	"log/slog"
	"sync"

	"github.com/pubflow/pubflow-go/messaging"
	rabbitmqTransport "github.com/pubflow/pubflow-go/transports/rabbitmq"
)

// Client is the main entry point. It wires the shared connection, the sender
// and the topology manager together. The connection is established lazily on
// first use.
type Client struct {
	transport     *rabbitmqTransport.Transport
	ownsTransport bool
	sender        *messaging.Sender
	topology      *messaging.TopologyManager
	logger        *slog.Logger

	mu     sync.Mutex
	closed bool
}

type clientConfig struct {
	logger          *slog.Logger
	transport       *rabbitmqTransport.Transport
	exceptionPolicy messaging.ExceptionPolicy
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithClientLogger sets the logger used by every component.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithTransport supplies a caller-owned transport. The client will use it
// but never close it; ownership stays with the caller.
func WithTransport(transport *rabbitmqTransport.Transport) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transport = transport
	}
}

// WithExceptionPolicy sets the default policy consulted when a publish
// fails.
func WithExceptionPolicy(policy messaging.ExceptionPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.exceptionPolicy = policy
	}
}

// NewClient creates a client for the given connection string. The connection
// string is ignored when WithTransport is supplied.
func NewClient(connectionString string, options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	transport := cfg.transport
	ownsTransport := false
	if transport == nil {
		transport = rabbitmqTransport.NewTransport(connectionString,
			rabbitmqTransport.WithTransportLogger(cfg.logger))
		ownsTransport = true
	}

	senderOpts := []messaging.SenderOption{messaging.WithSenderLogger(cfg.logger)}
	if cfg.exceptionPolicy != nil {
		senderOpts = append(senderOpts, messaging.WithExceptionPolicy(cfg.exceptionPolicy))
	}

	return &Client{
		transport:     transport,
		ownsTransport: ownsTransport,
		sender:        messaging.NewSender(transport, senderOpts...),
		topology:      messaging.NewTopologyManager(transport, messaging.WithTopologyLogger(cfg.logger)),
		logger:        cfg.logger,
	}
}

// Sender returns the message sender.
func (c *Client) Sender() *messaging.Sender {
	return c.sender
}

// Topology returns the topology manager.
func (c *Client) Topology() *messaging.TopologyManager {
	return c.topology
}

// Close releases the client's resources: the shared resource channel and,
// for internally created transports, the connection. A caller-supplied
// transport is left open. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.topology.Close(); err != nil {
		c.logger.Warn("resource channel did not close cleanly", "error", err)
	}

	if !c.ownsTransport {
		return nil
	}
	return c.transport.Close()
}
