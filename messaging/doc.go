// Package messaging implements the pubflow sender core.
//
// This package provides:
//   - Sender: fire-and-forget publishing (Send) and publishing with
//     per-message broker confirmations (SendWithConfirms)
//   - ConfirmStream: the asynchronous result sequence of a confirmed send,
//     closed exactly once with a terminal success or failure
//   - TopologyManager: queue, exchange and binding declarations over one
//     shared long-lived channel
//   - ExceptionPolicy: pluggable retry-or-abort decisions for publish
//     failures, with a bounded fixed-interval default
//
// The confirmation engine is the heart of the package. Each confirmed send
// owns a fresh channel in confirm mode; messages are registered under their
// publish sequence number before the publish call, broker ack/nack
// notifications resolve them back to results, and an atomic state machine
// (ACTIVE, OUTBOUND_DONE, COMPLETE) guarantees exactly one terminal signal
// even when the producer goroutine and the confirmation pump race.
//
// Example:
//
//	sender := messaging.NewSender(provider)
//	messages := make(chan contracts.OutboundMessage)
//	stream, err := sender.SendWithConfirms(ctx, messages)
//	if err != nil {
//		return err
//	}
//	go func() {
//		defer close(messages)
//		for _, m := range batch {
//			messages <- m
//		}
//	}()
//	for result := range stream.Results() {
//		// one result per published message
//	}
//	return stream.Err()
package messaging
