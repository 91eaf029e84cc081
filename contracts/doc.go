// Package contracts defines the value types exchanged between the pubflow
// sender and its callers.
//
// This package includes:
//   - OutboundMessage / OutboundMessageResult: the unit of publishing and its
//     per-message confirmation outcome
//   - Resource specifications: queue, exchange and binding declarations
//     consumed by the topology layer
//   - The error taxonomy shared by every layer (connection, channel, publish,
//     resource and confirmation errors)
//
// All types here are plain values with no behavior beyond construction and
// error formatting, so they can cross package boundaries freely.
package contracts
