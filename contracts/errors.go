package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed  = errors.New("pubflow: connection is closed")
	ErrConnectionTimeout = errors.New("pubflow: connection timeout")
	ErrManagerClosed     = errors.New("pubflow: connection manager is closed")

	// Channel errors
	ErrChannelClosed = errors.New("pubflow: channel is closed")

	// Client errors
	ErrClientClosed = errors.New("pubflow: client is closed")
)

// ConnectionError represents a connection establishment or loss error.
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("pubflow connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel allocation or close error.
type ChannelError struct {
	Op        string    // Operation that failed
	ChannelID string    // Channel identifier, if known
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	if e.ChannelID != "" {
		return fmt.Sprintf("pubflow channel error: %s on channel %s: %v", e.Op, e.ChannelID, e.Err)
	}
	return fmt.Sprintf("pubflow channel error: %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PublishError represents a failure to get a specific message to the broker.
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("pubflow publish error: failed to publish to %s/%s: %v",
		e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ResourceOperationError represents a declare, bind, unbind or delete request
// the broker rejected.
type ResourceOperationError struct {
	Op        string    // Operation that failed (declare queue, bind queue, ...)
	Resource  string    // Resource name
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ResourceOperationError) Error() string {
	return fmt.Sprintf("pubflow resource error: failed to %s '%s': %v",
		e.Op, e.Resource, e.Err)
}

func (e *ResourceOperationError) Unwrap() error {
	return e.Err
}

// ConfirmationProtocolError represents unexpected confirm-listener behavior,
// such as the confirmation stream ending while deliveries are still pending.
type ConfirmationProtocolError struct {
	Op          string    // What the listener was doing
	DeliveryTag uint64    // Offending delivery tag, if any
	Err         error     // Underlying error
	Timestamp   time.Time // When the error occurred
}

func (e *ConfirmationProtocolError) Error() string {
	if e.DeliveryTag > 0 {
		return fmt.Sprintf("pubflow confirmation error: %s (delivery tag %d): %v", e.Op, e.DeliveryTag, e.Err)
	}
	return fmt.Sprintf("pubflow confirmation error: %s: %v", e.Op, e.Err)
}

func (e *ConfirmationProtocolError) Unwrap() error {
	return e.Err
}

// SanitizeURL removes sensitive information from connection URLs before they
// reach logs.
func SanitizeURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}
