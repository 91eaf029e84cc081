package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pubflow/pubflow-go/contracts"
)

// TopologyManager declares and deletes queues, exchanges and bindings. All
// operations share one long-lived channel, created lazily on first use and
// recreated if found closed; the broker client serializes the request/reply
// exchanges on it, so the manager is safe for concurrent use.
type TopologyManager struct {
	provider ChannelProvider
	logger   *slog.Logger

	mu      sync.Mutex
	channel Channel
}

// TopologyOption configures the TopologyManager.
type TopologyOption func(*TopologyManager)

// WithTopologyLogger sets the logger.
func WithTopologyLogger(logger *slog.Logger) TopologyOption {
	return func(tm *TopologyManager) {
		tm.logger = logger
	}
}

// NewTopologyManager creates a new topology manager.
func NewTopologyManager(provider ChannelProvider, options ...TopologyOption) *TopologyManager {
	tm := &TopologyManager{
		provider: provider,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(tm)
	}

	return tm
}

// DeclareQueue declares a queue and returns the broker's reply. An empty
// name requests a broker-assigned one and declares the queue non-durable,
// exclusive and auto-delete; every other specification passes through
// verbatim.
func (tm *TopologyManager) DeclareQueue(ctx context.Context, spec contracts.QueueSpecification) (contracts.QueueInfo, error) {
	if spec.Name == "" {
		spec = contracts.QueueSpecification{
			Exclusive:  true,
			AutoDelete: true,
		}
	}

	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return contracts.QueueInfo{}, err
	}

	info, err := ch.DeclareQueue(spec)
	if err != nil {
		return contracts.QueueInfo{}, tm.wrap("declare queue", spec.Name, err)
	}

	tm.logger.Debug("queue declared", "queue", info.Name)
	return info, nil
}

// DeclareExchange declares an exchange.
func (tm *TopologyManager) DeclareExchange(ctx context.Context, spec contracts.ExchangeSpecification) error {
	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.DeclareExchange(spec); err != nil {
		return tm.wrap("declare exchange", spec.Name, err)
	}

	tm.logger.Debug("exchange declared", "exchange", spec.Name, "type", spec.Type)
	return nil
}

// BindQueue binds a queue to an exchange.
func (tm *TopologyManager) BindQueue(ctx context.Context, spec contracts.BindingSpecification) error {
	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.BindQueue(spec); err != nil {
		return tm.wrap("bind queue", spec.Queue, err)
	}

	tm.logger.Debug("queue bound",
		"queue", spec.Queue,
		"exchange", spec.Exchange,
		"routingKey", spec.RoutingKey)
	return nil
}

// UnbindQueue removes a queue-to-exchange binding.
func (tm *TopologyManager) UnbindQueue(ctx context.Context, spec contracts.BindingSpecification) error {
	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.UnbindQueue(spec); err != nil {
		return tm.wrap("unbind queue", spec.Queue, err)
	}
	return nil
}

// DeleteQueue deletes a queue and returns the number of purged messages.
func (tm *TopologyManager) DeleteQueue(ctx context.Context, spec contracts.QueueDeleteSpecification) (int, error) {
	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return 0, err
	}

	purged, err := ch.DeleteQueue(spec)
	if err != nil {
		return 0, tm.wrap("delete queue", spec.Name, err)
	}
	return purged, nil
}

// DeleteExchange deletes an exchange.
func (tm *TopologyManager) DeleteExchange(ctx context.Context, spec contracts.ExchangeDeleteSpecification) error {
	ch, err := tm.resourceChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.DeleteExchange(spec); err != nil {
		return tm.wrap("delete exchange", spec.Name, err)
	}
	return nil
}

// Close closes the shared resource channel if one was ever created.
func (tm *TopologyManager) Close() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.channel == nil {
		return nil
	}
	ch := tm.channel
	tm.channel = nil
	if ch.IsClosed() {
		return nil
	}
	return ch.Close()
}

// resourceChannel returns the shared resource-management channel, creating
// it on first use. A broker rejection closes the channel server-side, so a
// closed channel is replaced on the next operation.
func (tm *TopologyManager) resourceChannel(ctx context.Context) (Channel, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.channel != nil && !tm.channel.IsClosed() {
		return tm.channel, nil
	}

	ch, err := tm.provider.Channel(ctx)
	if err != nil {
		return nil, err
	}
	tm.channel = ch
	return ch, nil
}

func (tm *TopologyManager) wrap(op, resource string, err error) error {
	return &contracts.ResourceOperationError{
		Op:        op,
		Resource:  resource,
		Err:       err,
		Timestamp: time.Now(),
	}
}
