// Package rabbitmq adapts the internal RabbitMQ connection layer to the
// messaging.ChannelProvider interface the sender core consumes.
package rabbitmq

import (
	"context"
	"log/slog"

	"github.com/pubflow/pubflow-go/internal/rabbitmq"
	"github.com/pubflow/pubflow-go/messaging"
)

// Transport hands out channels backed by one lazily established, shared
// RabbitMQ connection. It implements messaging.ChannelProvider.
type Transport struct {
	manager *rabbitmq.ConnectionManager
	logger  *slog.Logger
}

// TransportConfig holds configuration for the transport.
type TransportConfig struct {
	ConnectionOptions []rabbitmq.ConnectionOption
	Logger            *slog.Logger
}

// TransportOption configures the transport.
type TransportOption func(*TransportConfig)

// WithConnectionOptions sets connection options.
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// NewTransport creates a transport for the given connection string. No
// connection is established until the first channel is requested.
func NewTransport(connectionString string, options ...TransportOption) *Transport {
	cfg := &TransportConfig{
		Logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)

	return &Transport{
		manager: rabbitmq.NewConnectionManager(connectionString, connOpts...),
		logger:  cfg.Logger,
	}
}

// Channel derives a fresh channel from the shared connection, establishing
// the connection on first use.
func (t *Transport) Channel(ctx context.Context) (messaging.Channel, error) {
	ch, err := t.manager.Channel(ctx)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// IsConnected reports whether the shared connection is currently live.
func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

// Close shuts down the shared connection if one was ever established.
func (t *Transport) Close() error {
	return t.manager.Close()
}
