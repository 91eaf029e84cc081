package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"

	"github.com/pubflow/pubflow-go/contracts"
)

// Connection is the subset of the broker connection the sender layer needs.
type Connection interface {
	// OpenChannel allocates a fresh channel on this connection.
	OpenChannel() (*AMQPChannel, error)

	// Close closes the connection and every channel derived from it.
	Close() error

	// IsClosed reports whether the connection is no longer usable.
	IsClosed() bool
}

// DialFunc establishes a broker connection. The default dials the manager's
// URL with amqp091; tests substitute their own.
type DialFunc func(ctx context.Context) (Connection, error)

// ConnectionManager lazily establishes and caches exactly one shared
// connection. Concurrent first callers collapse into a single dial and all
// receive the same connection instance or the same error. A failed dial is
// never cached: the next call attempts a fresh one.
type ConnectionManager struct {
	url         string
	dial        DialFunc
	dialTimeout time.Duration
	config      amqp.Config
	logger      *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	conn   Connection
	closed bool
}

// ConnectionOption configures the ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithDialFunc replaces the connection establishment function.
func WithDialFunc(dial DialFunc) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dial = dial
	}
}

// WithAMQPConfig sets the amqp091 configuration used by the default dial.
func WithAMQPConfig(config amqp.Config) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.config = config
	}
}

// WithDialTimeout bounds the broker handshake.
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// NewConnectionManager creates a new connection manager. No connection is
// established until the first Connection or Channel call.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:         url,
		dialTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	if cm.dial == nil {
		cm.dial = cm.dialAMQP
	}

	return cm
}

// Connection returns the shared connection, establishing it on first use.
func (cm *ConnectionManager) Connection(ctx context.Context) (Connection, error) {
	cm.mu.RLock()
	if cm.closed {
		cm.mu.RUnlock()
		return nil, contracts.ErrManagerClosed
	}
	if conn := cm.conn; conn != nil && !conn.IsClosed() {
		cm.mu.RUnlock()
		return conn, nil
	}
	cm.mu.RUnlock()

	v, err, _ := cm.group.Do("connect", func() (interface{}, error) {
		// A waiter may have raced with a winner that already cached the
		// connection; re-check before dialing again.
		cm.mu.RLock()
		if conn := cm.conn; conn != nil && !conn.IsClosed() {
			cm.mu.RUnlock()
			return conn, nil
		}
		cm.mu.RUnlock()

		conn, err := cm.dial(ctx)
		if err != nil {
			return nil, &contracts.ConnectionError{
				Op:        "connect",
				URL:       contracts.SanitizeURL(cm.url),
				Err:       err,
				Timestamp: time.Now(),
			}
		}

		cm.mu.Lock()
		if cm.closed {
			cm.mu.Unlock()
			conn.Close()
			return nil, contracts.ErrManagerClosed
		}
		cm.conn = conn
		cm.mu.Unlock()

		cm.logger.Info("connected to RabbitMQ", "url", contracts.SanitizeURL(cm.url))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Connection), nil
}

// Channel derives a fresh channel from the shared connection.
func (cm *ConnectionManager) Channel(ctx context.Context) (*AMQPChannel, error) {
	conn, err := cm.Connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.OpenChannel()
}

// IsConnected reports whether a live connection is currently cached.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn != nil && !cm.conn.IsClosed()
}

// Close shuts the manager down, closing the underlying connection if one was
// ever established. Further calls return nil.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return nil
	}
	cm.closed = true
	conn := cm.conn
	cm.conn = nil
	cm.mu.Unlock()

	if conn == nil {
		return nil
	}

	cm.logger.Info("closing RabbitMQ connection", "url", contracts.SanitizeURL(cm.url))
	return conn.Close()
}

// dialAMQP is the default DialFunc.
func (cm *ConnectionManager) dialAMQP(ctx context.Context) (Connection, error) {
	config := cm.config
	if config.Dial == nil {
		config.Dial = amqp.DefaultDial(cm.dialTimeout)
	}

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.DialConfig(cm.url, config)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return &amqpConnection{conn: res.conn, logger: cm.logger}, nil
	case <-ctx.Done():
		// The dial goroutine cleans up after itself once the handshake
		// finishes.
		go func() {
			if res := <-done; res.err == nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// amqpConnection adapts *amqp.Connection to the Connection interface.
type amqpConnection struct {
	conn   *amqp.Connection
	logger *slog.Logger
}

func (c *amqpConnection) OpenChannel() (*AMQPChannel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, &contracts.ChannelError{
			Op:        "open channel",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return newAMQPChannel(ch, c.logger), nil
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}
